package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/inkwell-scan/inkwell/internal/conversion"
	"github.com/inkwell-scan/inkwell/internal/transcribe"
	"github.com/inkwell-scan/inkwell/internal/typeset"
)

// In-memory repositories. Single-process tests only need last-writer-wins
// semantics, same as the real store.

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

func (m *memJobs) current(t *testing.T, id uuid.UUID) conversion.Job {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		t.Fatalf("job %s not found", id)
	}
	return job
}

type memPages struct {
	mu          sync.Mutex
	pages       map[uuid.UUID][]conversion.PageArtifact
	replaceErr  error
	replaceSeen int
}

func newMemPages() *memPages {
	return &memPages{pages: make(map[uuid.UUID][]conversion.PageArtifact)}
}

func (m *memPages) ReplacePages(_ context.Context, jobID uuid.UUID, pages []conversion.PageArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceSeen++
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.pages[jobID] = append([]conversion.PageArtifact(nil), pages...)
	return nil
}

func (m *memPages) ListPages(_ context.Context, jobID uuid.UUID) ([]conversion.PageArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]conversion.PageArtifact(nil), m.pages[jobID]...), nil
}

func (m *memPages) DeletePages(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, jobID)
	return nil
}

type memSegs struct {
	mu   sync.Mutex
	segs map[uuid.UUID][]conversion.Segmentation
	next int64
}

func newMemSegs() *memSegs {
	return &memSegs{segs: make(map[uuid.UUID][]conversion.Segmentation)}
}

func (m *memSegs) Replace(_ context.Context, jobID uuid.UUID, segs []conversion.Segmentation) ([]conversion.Segmentation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]conversion.Segmentation, len(segs))
	for i, seg := range segs {
		m.next++
		seg.ID = m.next
		seg.JobID = jobID
		out[i] = seg
	}
	m.segs[jobID] = out
	return append([]conversion.Segmentation(nil), out...), nil
}

func (m *memSegs) List(_ context.Context, jobID uuid.UUID) ([]conversion.Segmentation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]conversion.Segmentation(nil), m.segs[jobID]...), nil
}

func (m *memSegs) Get(_ context.Context, jobID uuid.UUID, segID int64) (*conversion.Segmentation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seg := range m.segs[jobID] {
		if seg.ID == segID {
			cp := seg
			return &cp, nil
		}
	}
	return nil, conversion.ErrNotFound
}

func (m *memSegs) SetEnhanced(_ context.Context, segID int64, enhancedKey string, useEnhanced bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

// fakeRasterizer returns fixed page images.
type fakeRasterizer struct {
	pages [][]byte
	err   error
}

func (f *fakeRasterizer) Render(context.Context, []byte) ([][]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

// fakeTranscriber returns a canned response.
type fakeTranscriber struct {
	raw string
	err error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, modelID string) (*transcribe.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.Result{Raw: f.raw, ModelUsed: modelID}, nil
}

// fakeTypesetter records the compiled document and aux files.
type fakeTypesetter struct {
	mu       sync.Mutex
	document string
	aux      map[string][]byte
	pdf      []byte
	err      error
}

func (f *fakeTypesetter) Compile(_ context.Context, document string, aux map[string][]byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.document = document
	f.aux = aux
	if f.err != nil {
		return nil, f.err
	}
	if f.pdf == nil {
		return []byte("%PDF-1.5 fake"), nil
	}
	return f.pdf, nil
}

var _ typeset.Typesetter = (*fakeTypesetter)(nil)

// testPNG renders a w x h image where the right-bottom quadrant is red and
// the rest white, so crops are verifiable by pixel color.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= w/2 && y >= h/2 {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

// transcriptWithPlaceholders builds a response declaring the given
// placeholder names with trivial descriptions.
func transcriptWithPlaceholders(body string, names ...string) string {
	resp := "```latex\n" + body + "\n```\n"
	for _, name := range names {
		resp += fmt.Sprintf("Placeholder: %s\nDescription: region %s\n", name, name)
	}
	return resp
}
