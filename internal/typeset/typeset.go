// Package typeset compiles a LaTeX document plus auxiliary files into a
// rendered PDF artifact.
package typeset

import (
	"context"
	"fmt"
)

// CompileError carries a bounded diagnostic excerpt from a failed
// compilation. Timeout distinguishes a blown wall-clock budget from an
// ordinary compile error.
type CompileError struct {
	Diagnostic string
	Timeout    bool
}

func (e *CompileError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("typesetting timed out: %s", e.Diagnostic)
	}
	return fmt.Sprintf("typesetting failed: %s", e.Diagnostic)
}

// Typesetter compiles a document. aux maps relative file paths (e.g.
// "figures/DIAGRAM-1.png") to their contents, made available alongside the
// document during compilation. Failures are returned as *CompileError.
type Typesetter interface {
	Compile(ctx context.Context, document string, aux map[string][]byte) ([]byte, error)
}
