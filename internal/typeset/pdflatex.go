package typeset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// pdflatex resolves cross-references on the second pass; two passes are
	// always enough for the documents this pipeline produces. A fixed count
	// bounds worst-case latency, unlike looping to a fixed point.
	compilePasses = 2

	defaultTimeout   = 2 * time.Minute
	maxDiagnosticLen = 2000
	maxErrorLogLines = 15
)

// PDFLatex compiles documents with the pdflatex binary.
type PDFLatex struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// PDFLatexConfig configures a PDFLatex typesetter.
type PDFLatexConfig struct {
	Binary  string        // default "pdflatex"
	Timeout time.Duration // wall-clock budget for all passes (default 2m)
	Logger  *slog.Logger
}

// NewPDFLatex creates a pdflatex-backed typesetter.
func NewPDFLatex(cfg PDFLatexConfig) *PDFLatex {
	binary := cfg.Binary
	if binary == "" {
		binary = "pdflatex"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFLatex{binary: binary, timeout: timeout, logger: logger}
}

// Compile writes the document and auxiliary files to a temp dir, runs the
// fixed number of pdflatex passes under the wall-clock budget, and returns
// the rendered PDF bytes.
func (p *PDFLatex) Compile(ctx context.Context, document string, aux map[string][]byte) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "inkwell-typeset-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	texPath := filepath.Join(tmpDir, "document.tex")
	if err := os.WriteFile(texPath, []byte(document), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	for rel, data := range aux {
		path := filepath.Join(tmpDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create aux dir for %s: %w", rel, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write aux file %s: %w", rel, err)
		}
	}

	// One budget across all passes.
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	for pass := 1; pass <= compilePasses; pass++ {
		p.logger.Debug("running typeset pass", "pass", pass, "of", compilePasses)
		cmd := exec.CommandContext(ctx, p.binary, "-interaction=nonstopmode", "-no-shell-escape", "document.tex")
		cmd.Dir = tmpDir
		output, err := cmd.CombinedOutput()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				return nil, &CompileError{
					Timeout:    true,
					Diagnostic: fmt.Sprintf("exceeded %s budget on pass %d", p.timeout, pass),
				}
			}
			return nil, &CompileError{Diagnostic: p.extractDiagnostic(tmpDir, output)}
		}
	}

	pdf, err := os.ReadFile(filepath.Join(tmpDir, "document.pdf"))
	if err != nil {
		return nil, &CompileError{Diagnostic: "compiler exited cleanly but produced no PDF"}
	}
	return pdf, nil
}

// extractDiagnostic prefers explicit error lines from the engine's log file
// over raw process output, truncated to a bounded size.
func (p *PDFLatex) extractDiagnostic(tmpDir string, processOutput []byte) string {
	logBytes, err := os.ReadFile(filepath.Join(tmpDir, "document.log"))
	if err != nil {
		return truncateTail(string(processOutput), maxDiagnosticLen)
	}

	var errorLines []string
	for _, line := range strings.Split(string(logBytes), "\n") {
		if strings.HasPrefix(line, "!") || strings.Contains(line, "Error:") {
			errorLines = append(errorLines, line)
		}
	}
	if len(errorLines) > 0 {
		if len(errorLines) > maxErrorLogLines {
			errorLines = errorLines[len(errorLines)-maxErrorLogLines:]
		}
		return strings.Join(errorLines, "\n")
	}
	return truncateTail(string(logBytes), maxDiagnosticLen)
}

func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
