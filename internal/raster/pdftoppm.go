package raster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const defaultDPI = 300

// PDFRasterizer renders PDF pages via pdftoppm (poppler-utils), using pdfcpu
// to validate the document and count pages up front.
type PDFRasterizer struct {
	dpi     int
	workers int
	logger  *slog.Logger
}

// PDFRasterizerConfig configures a PDFRasterizer.
type PDFRasterizerConfig struct {
	DPI     int // render resolution (default 300)
	Workers int // concurrent page renders (default NumCPU)
	Logger  *slog.Logger
}

// NewPDFRasterizer creates a rasterizer with the given config.
func NewPDFRasterizer(cfg PDFRasterizerConfig) *PDFRasterizer {
	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = defaultDPI
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFRasterizer{dpi: dpi, workers: workers, logger: logger}
}

// Render writes the document to a temp file, renders every page to PNG
// concurrently, and returns the images in page order.
func (r *PDFRasterizer) Render(ctx context.Context, document []byte) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp("", "inkwell-raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "source.pdf")
	if err := os.WriteFile(pdfPath, document, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write source document: %w", err)
	}

	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source document: %w", err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount == 0 {
		return nil, ErrNoPages
	}

	r.logger.Debug("rasterizing document", "pages", pageCount, "dpi", r.dpi)

	type result struct {
		page int
		data []byte
		err  error
	}

	results := make(chan result, pageCount)
	sem := make(chan struct{}, r.workers)

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{} // acquire
		go func(page int) {
			defer func() { <-sem }() // release
			data, err := r.renderPage(ctx, pdfPath, tmpDir, page)
			results <- result{page: page, data: data, err: err}
		}(page)
	}

	images := make([][]byte, pageCount)
	for i := 0; i < pageCount; i++ {
		res := <-results
		if res.err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", res.page, res.err)
		}
		images[res.page-1] = res.data
	}

	return images, nil
}

// renderPage renders a single page to PNG via pdftoppm.
func (r *PDFRasterizer) renderPage(ctx context.Context, pdfPath, tmpDir string, page int) ([]byte, error) {
	prefix := filepath.Join(tmpDir, fmt.Sprintf("page_%d", page))
	pageStr := strconv.Itoa(page)

	// -singlefile drops the page number suffix so output is <prefix>.png
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-gray",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(r.dpi),
		"-singlefile",
		pdfPath,
		prefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}
