package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/inkwell-scan/inkwell/internal/blob"
	"github.com/inkwell-scan/inkwell/internal/conversion"
	"github.com/inkwell-scan/inkwell/internal/enhance"
	"github.com/inkwell-scan/inkwell/internal/queue"
)

type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]conversion.Job
}

func newMemJobs(jobs ...*conversion.Job) *memJobs {
	m := &memJobs{jobs: make(map[uuid.UUID]conversion.Job)}
	for _, j := range jobs {
		m.jobs[j.ID] = *j
	}
	return m
}

func (m *memJobs) Create(_ context.Context, job *conversion.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobs) Get(_ context.Context, id uuid.UUID) (*conversion.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, conversion.ErrNotFound
	}
	cp := job
	return &cp, nil
}

func (m *memJobs) Update(_ context.Context, job *conversion.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return conversion.ErrNotFound
	}
	m.jobs[job.ID] = *job
	return nil
}

type memPages struct {
	pages map[uuid.UUID][]conversion.PageArtifact
}

func (m *memPages) ReplacePages(_ context.Context, jobID uuid.UUID, pages []conversion.PageArtifact) error {
	m.pages[jobID] = pages
	return nil
}

func (m *memPages) ListPages(_ context.Context, jobID uuid.UUID) ([]conversion.PageArtifact, error) {
	return m.pages[jobID], nil
}

func (m *memPages) DeletePages(_ context.Context, jobID uuid.UUID) error {
	delete(m.pages, jobID)
	return nil
}

type memSegs struct {
	segs map[uuid.UUID][]conversion.Segmentation
	next int64
}

func (m *memSegs) Replace(_ context.Context, jobID uuid.UUID, segs []conversion.Segmentation) ([]conversion.Segmentation, error) {
	out := make([]conversion.Segmentation, len(segs))
	for i, seg := range segs {
		m.next++
		seg.ID = m.next
		seg.JobID = jobID
		out[i] = seg
	}
	m.segs[jobID] = out
	return out, nil
}

func (m *memSegs) List(_ context.Context, jobID uuid.UUID) ([]conversion.Segmentation, error) {
	return m.segs[jobID], nil
}

func (m *memSegs) Get(_ context.Context, jobID uuid.UUID, segID int64) (*conversion.Segmentation, error) {
	for _, seg := range m.segs[jobID] {
		if seg.ID == segID {
			cp := seg
			return &cp, nil
		}
	}
	return nil, conversion.ErrNotFound
}

func (m *memSegs) SetEnhanced(_ context.Context, segID int64, enhancedKey string, useEnhanced bool) error {
	for jobID, segs := range m.segs {
		for i := range segs {
			if segs[i].ID == segID {
				segs[i].EnhancedKey = enhancedKey
				segs[i].UseEnhanced = useEnhanced
				m.segs[jobID] = segs
				return nil
			}
		}
	}
	return conversion.ErrNotFound
}

// recordingDispatcher captures enqueued tasks.
type recordingDispatcher struct {
	tasks []queue.Task
	err   error
}

func (d *recordingDispatcher) Enqueue(_ context.Context, task queue.Task) error {
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, task)
	return nil
}

type fixture struct {
	svc        *JobService
	jobs       *memJobs
	pages      *memPages
	segs       *memSegs
	store      *blob.MemoryStore
	dispatcher *recordingDispatcher
}

func newFixture(jobs ...*conversion.Job) *fixture {
	f := &fixture{
		jobs:       newMemJobs(jobs...),
		pages:      &memPages{pages: make(map[uuid.UUID][]conversion.PageArtifact)},
		segs:       &memSegs{segs: make(map[uuid.UUID][]conversion.Segmentation)},
		store:      blob.NewMemoryStore(),
		dispatcher: &recordingDispatcher{},
	}
	f.svc = New(Config{
		Store:         f.store,
		Jobs:          f.jobs,
		Pages:         f.pages,
		Segmentations: f.segs,
		Dispatcher:    f.dispatcher,
	})
	return f
}

func TestCreateJob(t *testing.T) {
	ctx := context.Background()

	t.Run("stores source and enqueues conversion", func(t *testing.T) {
		f := newFixture()
		job, err := f.svc.CreateJob(ctx, "notes.pdf", []byte("%PDF"), "gpt-4o")
		if err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}

		if job.Status != conversion.StatusPending {
			t.Errorf("expected pending, got %s", job.Status)
		}
		if job.ModelID != "gpt-4o" {
			t.Errorf("expected model recorded, got %q", job.ModelID)
		}
		if _, err := f.store.Get(ctx, job.SourceKey); err != nil {
			t.Errorf("expected source stored under %s: %v", job.SourceKey, err)
		}
		if len(f.dispatcher.tasks) != 1 || f.dispatcher.tasks[0].Stage != queue.StageConvert {
			t.Errorf("expected one convert task, got %v", f.dispatcher.tasks)
		}
	})

	t.Run("strips directory components from filename", func(t *testing.T) {
		f := newFixture()
		job, err := f.svc.CreateJob(ctx, "../../etc/passwd", []byte("x"), "")
		if err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		if job.SourceFilename != "passwd" {
			t.Errorf("expected base name, got %q", job.SourceFilename)
		}
	})

	t.Run("rejects empty source", func(t *testing.T) {
		f := newFixture()
		if _, err := f.svc.CreateJob(ctx, "empty.pdf", nil, ""); err == nil {
			t.Fatal("expected error for empty source")
		}
	})
}

func TestTriggerCompile(t *testing.T) {
	ctx := context.Background()

	t.Run("valid from segmentation_complete", func(t *testing.T) {
		job := conversion.NewJob("a.pdf", "k", "")
		job.Status = conversion.StatusSegmentationComplete
		f := newFixture(job)

		if err := f.svc.TriggerCompile(ctx, job.ID); err != nil {
			t.Fatalf("TriggerCompile failed: %v", err)
		}

		got, _ := f.jobs.Get(ctx, job.ID)
		if got.Status != conversion.StatusCompilationPending {
			t.Errorf("expected compilation_pending, got %s", got.Status)
		}
		if len(f.dispatcher.tasks) != 1 || f.dispatcher.tasks[0].Stage != queue.StageCompile {
			t.Errorf("expected one compile task, got %v", f.dispatcher.tasks)
		}
	})

	t.Run("valid from awaiting_segmentation", func(t *testing.T) {
		job := conversion.NewJob("a.pdf", "k", "")
		job.Status = conversion.StatusAwaitingSegmentation
		f := newFixture(job)

		if err := f.svc.TriggerCompile(ctx, job.ID); err != nil {
			t.Fatalf("TriggerCompile failed: %v", err)
		}
	})

	t.Run("rejected from other states", func(t *testing.T) {
		for _, status := range []conversion.Status{
			conversion.StatusPending,
			conversion.StatusRendering,
			conversion.StatusCompilationPending,
			conversion.StatusFailed,
		} {
			job := conversion.NewJob("a.pdf", "k", "")
			job.Status = status
			f := newFixture(job)

			err := f.svc.TriggerCompile(ctx, job.ID)
			if !errors.Is(err, ErrInvalidState) {
				t.Errorf("status %s: expected ErrInvalidState, got %v", status, err)
			}
			if len(f.dispatcher.tasks) != 0 {
				t.Errorf("status %s: nothing should be enqueued", status)
			}
		}
	})
}

func TestReplaceSegmentations(t *testing.T) {
	ctx := context.Background()

	validSeg := conversion.Segmentation{
		PageNumber: 0,
		Rect:       conversion.Rect{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2},
		Label:      "DIAGRAM-1",
	}

	t.Run("persists valid segmentations", func(t *testing.T) {
		job := conversion.NewJob("a.pdf", "k", "")
		job.Status = conversion.StatusAwaitingSegmentation
		f := newFixture(job)

		got, err := f.svc.ReplaceSegmentations(ctx, job.ID, []conversion.Segmentation{validSeg})
		if err != nil {
			t.Fatalf("ReplaceSegmentations failed: %v", err)
		}
		if len(got) != 1 || got[0].ID == 0 {
			t.Errorf("expected assigned id, got %v", got)
		}
	})

	t.Run("rejects invalid rectangle before persisting", func(t *testing.T) {
		job := conversion.NewJob("a.pdf", "k", "")
		job.Status = conversion.StatusAwaitingSegmentation
		f := newFixture(job)

		bad := validSeg
		bad.Rect.Width = 2
		_, err := f.svc.ReplaceSegmentations(ctx, job.ID, []conversion.Segmentation{validSeg, bad})
		if err == nil {
			t.Fatal("expected validation error")
		}
		if stored, _ := f.segs.List(ctx, job.ID); len(stored) != 0 {
			t.Errorf("nothing should be persisted on validation failure, got %v", stored)
		}
	})

	t.Run("rejected while converting", func(t *testing.T) {
		job := conversion.NewJob("a.pdf", "k", "")
		job.Status = conversion.StatusRendering
		f := newFixture(job)

		_, err := f.svc.ReplaceSegmentations(ctx, job.ID, []conversion.Segmentation{validSeg})
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestUpdateDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("edit before compilation keeps status", func(t *testing.T) {
		job := conversion.NewJob("a.pdf", "k", "")
		job.Status = conversion.StatusAwaitingSegmentation
		job.InitialDocKey = "outputs/initial_tex/x.tex"
		f := newFixture(job)
		f.store.Put(ctx, job.InitialDocKey, []byte("old"), "")

		if err := f.svc.UpdateDocument(ctx, job.ID, "new text"); err != nil {
			t.Fatalf("UpdateDocument failed: %v", err)
		}

		got, _ := f.jobs.Get(ctx, job.ID)
		if got.Status != conversion.StatusAwaitingSegmentation {
			t.Errorf("status must not change, got %s", got.Status)
		}
		doc, _ := f.store.Get(ctx, job.InitialDocKey)
		if string(doc) != "new text" {
			t.Errorf("expected document replaced, got %q", doc)
		}
	})

	t.Run("edit after compilation invalidates render", func(t *testing.T) {
		job := conversion.NewJob("a.pdf", "k", "")
		job.InitialDocKey = "outputs/initial_tex/x.tex"
		job.Complete("outputs/final_tex/x.tex", "outputs/final_pdf/x.pdf")
		f := newFixture(job)
		f.store.Put(ctx, job.InitialDocKey, []byte("old"), "")
		f.store.Put(ctx, job.FinalDocKey, []byte("final"), "")
		f.store.Put(ctx, job.FinalRenderKey, []byte("pdf"), "")

		if err := f.svc.UpdateDocument(ctx, job.ID, "edited"); err != nil {
			t.Fatalf("UpdateDocument failed: %v", err)
		}

		got, _ := f.jobs.Get(ctx, job.ID)
		if got.Status != conversion.StatusSegmentationComplete {
			t.Errorf("expected segmentation_complete, got %s", got.Status)
		}
		if got.FinalDocKey != "" || got.FinalRenderKey != "" {
			t.Error("expected final keys cleared")
		}
		if got.CompletedAt != nil {
			t.Error("expected completedAt cleared")
		}
		if _, err := f.store.Get(ctx, "outputs/final_pdf/x.pdf"); !errors.Is(err, blob.ErrNotFound) {
			t.Error("expected stale render deleted")
		}
	})

	t.Run("rejected before a document exists", func(t *testing.T) {
		job := conversion.NewJob("a.pdf", "k", "")
		f := newFixture(job)

		err := f.svc.UpdateDocument(ctx, job.ID, "text")
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestPlaceholderTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("nil before stage one runs", func(t *testing.T) {
		job := conversion.NewJob("a.pdf", "k", "")
		f := newFixture(job)

		tasks, err := f.svc.PlaceholderTasks(ctx, job.ID)
		if err != nil {
			t.Fatalf("PlaceholderTasks failed: %v", err)
		}
		if tasks != nil {
			t.Errorf("expected nil before determination, got %v", tasks)
		}
	})

	t.Run("ordered by kind then index", func(t *testing.T) {
		job := conversion.NewJob("a.pdf", "k", "")
		job.PlaceholderTasks = map[string]string{
			"DIAGRAM-2":    "d2",
			"STRUCTURE-10": "s10",
			"DIAGRAM-1":    "d1",
			"STRUCTURE-2":  "s2",
		}
		f := newFixture(job)

		tasks, err := f.svc.PlaceholderTasks(ctx, job.ID)
		if err != nil {
			t.Fatalf("PlaceholderTasks failed: %v", err)
		}

		want := []string{"STRUCTURE-2", "STRUCTURE-10", "DIAGRAM-1", "DIAGRAM-2"}
		if len(tasks) != len(want) {
			t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
		}
		for i, name := range want {
			if tasks[i].Placeholder != name {
				t.Errorf("position %d: expected %s, got %s", i, name, tasks[i].Placeholder)
			}
		}
	})
}

func TestEnhanceRegion(t *testing.T) {
	ctx := context.Background()

	makePage := func(t *testing.T) []byte {
		t.Helper()
		img := image.NewRGBA(image.Rect(0, 0, 50, 50))
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatalf("encode page: %v", err)
		}
		return buf.Bytes()
	}

	setup := func(t *testing.T) (*fixture, *conversion.Job, int64) {
		t.Helper()
		job := conversion.NewJob("a.pdf", "k", "")
		job.Status = conversion.StatusAwaitingSegmentation
		job.PlaceholderTasks = map[string]string{"DIAGRAM-1": "a flow chart"}
		f := newFixture(job)
		f.svc = New(Config{
			Store:         f.store,
			Jobs:          f.jobs,
			Pages:         f.pages,
			Segmentations: f.segs,
			Dispatcher:    f.dispatcher,
			Enhancer:      enhance.Passthrough{},
		})

		pageKey := "pages/x/page_0.png"
		f.store.Put(ctx, pageKey, makePage(t), "image/png")
		f.pages.ReplacePages(ctx, job.ID, []conversion.PageArtifact{
			{JobID: job.ID, PageNumber: 0, Key: pageKey},
		})
		segs, _ := f.segs.Replace(ctx, job.ID, []conversion.Segmentation{{
			PageNumber: 0,
			Rect:       conversion.Rect{X: 0.2, Y: 0.2, Width: 0.4, Height: 0.4},
			Label:      "DIAGRAM-1",
		}})
		return f, job, segs[0].ID
	}

	t.Run("stores crop and marks segmentation", func(t *testing.T) {
		f, job, segID := setup(t)

		seg, err := f.svc.EnhanceRegion(ctx, job.ID, segID)
		if err != nil {
			t.Fatalf("EnhanceRegion failed: %v", err)
		}
		if !seg.UseEnhanced || seg.EnhancedKey == "" {
			t.Errorf("expected enhanced key set and selected, got %+v", seg)
		}
		if _, err := f.store.Get(ctx, seg.EnhancedKey); err != nil {
			t.Errorf("expected enhanced blob stored: %v", err)
		}

		stored, _ := f.segs.Get(ctx, job.ID, segID)
		if !stored.UseEnhanced {
			t.Error("expected persisted segmentation to use the enhanced crop")
		}
	})

	t.Run("fails without an enhancer", func(t *testing.T) {
		f, job, segID := setup(t)
		f.svc = New(Config{
			Store:         f.store,
			Jobs:          f.jobs,
			Pages:         f.pages,
			Segmentations: f.segs,
			Dispatcher:    f.dispatcher,
		})

		if _, err := f.svc.EnhanceRegion(ctx, job.ID, segID); err == nil {
			t.Fatal("expected error when enhancement is not configured")
		}
	})
}
