package latex

import (
	"strings"
	"testing"
)

func TestParseTranscript(t *testing.T) {
	t.Run("extracts fenced block and trailing descriptions", func(t *testing.T) {
		raw := "Here is the transcription:\n" +
			"```latex\n" +
			"\\section{Notes}\nSome text. % PLACEHOLDER: STRUCTURE-1\n" +
			"```\n" +
			"Placeholder: STRUCTURE-1\nDescription: A matrix"

		fragment, desc, err := ParseTranscript(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(fragment, `\section{Notes}`) {
			t.Errorf("unexpected fragment: %q", fragment)
		}
		if strings.Contains(fragment, "```") {
			t.Error("fragment must not contain fence markers")
		}
		if !strings.HasPrefix(desc, "Placeholder: STRUCTURE-1") {
			t.Errorf("unexpected description block: %q", desc)
		}
	})

	t.Run("accepts bare fence", func(t *testing.T) {
		raw := "```\n\\section{A}\n```"
		fragment, _, err := ParseTranscript(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fragment != `\section{A}` {
			t.Errorf("unexpected fragment: %q", fragment)
		}
	})

	t.Run("no block is an error", func(t *testing.T) {
		if _, _, err := ParseTranscript("I could not read the page, sorry."); err == nil {
			t.Fatal("expected error for response without a LaTeX block")
		}
	})
}

func TestWrapFragment(t *testing.T) {
	t.Run("wraps a bare fragment", func(t *testing.T) {
		doc := WrapFragment(`\section{Hello}`)

		if !strings.Contains(doc, `\documentclass{article}`) {
			t.Error("expected preamble")
		}
		if !strings.Contains(doc, `\begin{document}`) || !strings.Contains(doc, `\end{document}`) {
			t.Error("expected document environment")
		}
		if !strings.Contains(doc, `\section{Hello}`) {
			t.Error("expected fragment body")
		}
	})

	t.Run("complete document passes through", func(t *testing.T) {
		full := "\\documentclass{report}\n\\begin{document}\nhi\n\\end{document}"
		if got := WrapFragment(full); got != full {
			t.Error("expected complete document unchanged")
		}
	})
}

func TestEnsureTikz(t *testing.T) {
	t.Run("inserts after documentclass when tikz used", func(t *testing.T) {
		doc := "\\documentclass[12pt]{article}\n\\begin{document}\n\\begin{tikzpicture}\\end{tikzpicture}\n\\end{document}"
		got := EnsureTikz(doc)

		idx := strings.Index(got, `\usepackage{tikz}`)
		if idx < 0 {
			t.Fatal("expected tikz package to be inserted")
		}
		if idx < strings.Index(got, `\documentclass`) {
			t.Error("tikz directive must follow documentclass")
		}
	})

	t.Run("no tikzpicture leaves document alone", func(t *testing.T) {
		doc := "\\documentclass{article}\n\\begin{document}\nhi\n\\end{document}"
		if got := EnsureTikz(doc); got != doc {
			t.Error("expected document unchanged")
		}
	})

	t.Run("already loaded is not duplicated", func(t *testing.T) {
		doc := "\\documentclass{article}\n\\usepackage{tikz}\n\\begin{tikzpicture}\\end{tikzpicture}"
		got := EnsureTikz(doc)
		if strings.Count(got, `\usepackage{tikz}`) != 1 {
			t.Error("expected exactly one tikz directive")
		}
	})

	t.Run("missing documentclass gets it prepended", func(t *testing.T) {
		doc := "\\begin{tikzpicture}\\end{tikzpicture}"
		got := EnsureTikz(doc)
		if !strings.HasPrefix(got, `\usepackage{tikz}`) {
			t.Errorf("expected tikz directive prepended, got %q", got)
		}
	})
}
