package latex

import (
	"fmt"
	"regexp"
	"strings"
)

// Preamble wrapped around transcription fragments that are not already
// complete documents.
const (
	defaultPreamble = `\documentclass{article}
\usepackage[utf8]{inputenc}
\usepackage{amsmath}
\usepackage{graphicx}
\usepackage{amsfonts}
\usepackage{amssymb}
\setlength{\parindent}{0pt}
`
	beginDocument = `\begin{document}`
	endDocument   = `\end{document}`
)

var (
	latexBlockRe    = regexp.MustCompile("(?si)```(?:latex)?\\s*(.*?)\\s*```")
	documentClassRe = regexp.MustCompile(`\\documentclass(\[[^\]]*\])?\{[^\}]*\}`)
)

// ParseTranscript splits a raw transcription response into the LaTeX
// fragment (the fenced code block) and the trailing description block.
// A response without a fenced LaTeX block is an error: the caller must be
// able to distinguish a failed transcription from genuine output.
func ParseTranscript(raw string) (fragment, descriptions string, err error) {
	loc := latexBlockRe.FindStringSubmatchIndex(raw)
	if loc == nil {
		return "", "", fmt.Errorf("transcription response contains no LaTeX block")
	}
	fragment = strings.TrimSpace(raw[loc[2]:loc[3]])
	descriptions = strings.TrimSpace(raw[loc[1]:])
	return fragment, descriptions, nil
}

// WrapFragment wraps a LaTeX fragment with the standard preamble and
// document environment. Fragments that already look like a complete document
// (first significant token is \documentclass) pass through unmodified; this
// is a heuristic check, not a full parser.
func WrapFragment(fragment string) string {
	if strings.HasPrefix(strings.TrimSpace(fragment), `\documentclass`) {
		return fragment
	}
	return defaultPreamble + "\n" + beginDocument + "\n\n" + fragment + "\n\n" + endDocument
}

// EnsureTikz inserts \usepackage{tikz} immediately after the \documentclass
// declaration when the document uses a tikzpicture without loading the
// package. Documents without a \documentclass get the directive prepended.
func EnsureTikz(doc string) string {
	if !strings.Contains(doc, `\begin{tikzpicture}`) || strings.Contains(doc, `\usepackage{tikz}`) {
		return doc
	}
	if loc := documentClassRe.FindStringIndex(doc); loc != nil {
		return doc[:loc[1]] + "\n\\usepackage{tikz}" + doc[loc[1]:]
	}
	return "\\usepackage{tikz}\n" + doc
}
