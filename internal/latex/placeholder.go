// Package latex implements the placeholder protocol that links free-form
// transcription output to structured region placeholders, plus the document
// wrapping and figure substitution used by the compilation stage.
package latex

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// Placeholder markers are LaTeX comments with a case-sensitive category tag
// and a positive integer. STRUCTURE markers sit inline within text or math;
// DIAGRAM markers occupy their own line. Counters are per category and are
// assigned upstream by the transcription model; we validate, never renumber.
const markerPrefix = "% PLACEHOLDER: "

var (
	placeholderNameRe = regexp.MustCompile(`^(STRUCTURE|DIAGRAM)-\d+$`)
	descriptionRe     = regexp.MustCompile(`(?s)^(STRUCTURE-\d+|DIAGRAM-\d+)\s*\nDescription:\s*(.*)$`)
	splitRe           = regexp.MustCompile(`\nPlaceholder:\s*`)
)

// ValidPlaceholderName reports whether name matches the marker lexical
// pattern (e.g. "DIAGRAM-1", "STRUCTURE-12").
func ValidPlaceholderName(name string) bool {
	return placeholderNameRe.MatchString(name)
}

// Marker returns the comment marker for a placeholder name.
func Marker(name string) string {
	return markerPrefix + name
}

// ParseDescriptions parses the description block of a transcription response:
// repeated "Placeholder: <name>" / "Description: <text>" records, where the
// description runs until the next "Placeholder:" line or end of input.
//
// This is a best-effort parse, not a strict schema. Records that do not match
// are logged and dropped; a malformed record never aborts the rest. Duplicate
// names are tolerated with the last description winning.
func ParseDescriptions(text string, logger *slog.Logger) map[string]string {
	if logger == nil {
		logger = slog.Default()
	}
	descriptions := make(map[string]string)
	parts := splitRe.Split("\n"+strings.TrimSpace(text), -1)
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m := descriptionRe.FindStringSubmatch(part)
		if m == nil {
			logger.Warn("dropping unparseable description record", "record", truncate(part, 50))
			continue
		}
		descriptions[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
	}
	return descriptions
}

// SanitizeLabel converts a placeholder label into a filesystem-safe form.
func SanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// FigureBlock renders the figure-inclusion directive substituted for a
// placeholder marker: the cropped image, a caption derived from the label,
// and a generated anchor label.
func FigureBlock(label, figurePath string) string {
	caption := strings.ReplaceAll(label, "_", " ")
	return fmt.Sprintf("\\begin{figure}[htbp]\n"+
		"  \\centering\n"+
		"  \\includegraphics[width=0.8\\textwidth]{%s}\n"+
		"  \\caption{%s}\n"+
		"  \\label{fig:%s}\n"+
		"\\end{figure}", figurePath, caption, strings.ToLower(label))
}

// SubstitutePlaceholders replaces each placeholder's marker comment with a
// figure block referencing its cropped file. figures maps placeholder label
// to the relative figure path. Labels are processed in sorted order so the
// result is deterministic; markers without a figure are left untouched.
// The match is anchored on a trailing word boundary so a label never
// substitutes inside a longer marker (DIAGRAM-1 vs DIAGRAM-10).
func SubstitutePlaceholders(doc string, figures map[string]string) string {
	labels := make([]string, 0, len(figures))
	for label := range figures {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		re := regexp.MustCompile(regexp.QuoteMeta(Marker(label)) + `\b`)
		doc = re.ReplaceAllLiteralString(doc, FigureBlock(label, figures[label]))
	}
	return doc
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
