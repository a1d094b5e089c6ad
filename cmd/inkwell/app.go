package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/inkwell-scan/inkwell/internal/blob"
	"github.com/inkwell-scan/inkwell/internal/config"
	"github.com/inkwell-scan/inkwell/internal/enhance"
	"github.com/inkwell-scan/inkwell/internal/home"
	"github.com/inkwell-scan/inkwell/internal/metrics"
	"github.com/inkwell-scan/inkwell/internal/pipeline"
	"github.com/inkwell-scan/inkwell/internal/queue"
	"github.com/inkwell-scan/inkwell/internal/raster"
	"github.com/inkwell-scan/inkwell/internal/repository/postgres"
	"github.com/inkwell-scan/inkwell/internal/service"
	"github.com/inkwell-scan/inkwell/internal/transcribe"
	"github.com/inkwell-scan/inkwell/internal/typeset"
)

// app wires configuration into the concrete dependency graph shared by the
// serve and convert commands.
type app struct {
	home    *home.Dir
	manager *config.Manager
	cfg     *config.Config
	logger  *slog.Logger

	db       *sql.DB
	store    blob.Store
	jobs     *postgres.JobRepository
	pages    *postgres.PageRepository
	segs     *postgres.SegmentationRepository
	recorder *metrics.Recorder

	converter *pipeline.Converter
	compiler  *pipeline.Compiler
	handler   queue.Handler
}

func newApp(ctx context.Context) (*app, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	cfgPath := cfgFile
	if cfgPath == "" && h.ConfigExists() {
		cfgPath = h.ConfigPath()
	}
	manager, err := config.NewManager(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg := manager.Get()

	db, err := postgres.Open(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store, err := blob.NewFSStore(h.BlobPath())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	a := &app{
		home:     h,
		manager:  manager,
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store,
		jobs:     postgres.NewJobRepository(db),
		pages:    postgres.NewPageRepository(db),
		segs:     postgres.NewSegmentationRepository(db),
		recorder: metrics.NewRecorder(),
	}

	deps := pipeline.Deps{
		Store:         a.store,
		Jobs:          a.jobs,
		Pages:         a.pages,
		Segmentations: a.segs,
		Rasterizer: raster.NewPDFRasterizer(raster.PDFRasterizerConfig{
			DPI:     cfg.Raster.DPI,
			Workers: cfg.Raster.Workers,
			Logger:  logger,
		}),
		Transcriber: transcribe.NewOpenAIClient(transcribe.OpenAIConfig{
			APIKey:       cfg.OpenAIKey(),
			DefaultModel: cfg.OpenAI.TranscribeModel,
			Timeout:      time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
			MaxRetries:   cfg.OpenAI.MaxRetries,
			Logger:       logger,
		}),
		Typesetter: typeset.NewPDFLatex(typeset.PDFLatexConfig{
			Timeout: time.Duration(cfg.Typeset.TimeoutSeconds) * time.Second,
			Logger:  logger,
		}),
		Metrics: a.recorder,
		Logger:  logger,
		Workers: cfg.Pipeline.UploadWorkers,
	}
	a.converter = pipeline.NewConverter(deps)
	a.compiler = pipeline.NewCompiler(deps)
	a.handler = pipeline.Handler(a.converter, a.compiler)

	return a, nil
}

// enhancer returns the configured image enhancer, or nil when disabled.
func (a *app) enhancer() enhance.Enhancer {
	if !a.cfg.OpenAI.EnhanceEnabled {
		return nil
	}
	return enhance.NewOpenAIEnhancer(enhance.OpenAIConfig{
		APIKey:  a.cfg.OpenAIKey(),
		Model:   a.cfg.OpenAI.EnhanceModel,
		Timeout: time.Duration(a.cfg.OpenAI.TimeoutSeconds) * time.Second,
		Logger:  a.logger,
	})
}

// service builds the job service on top of a dispatcher.
func (a *app) service(dispatcher queue.Dispatcher) *service.JobService {
	return service.New(service.Config{
		Store:         a.store,
		Jobs:          a.jobs,
		Pages:         a.pages,
		Segmentations: a.segs,
		Dispatcher:    dispatcher,
		Enhancer:      a.enhancer(),
		Logger:        a.logger,
	})
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}
