// Package reconcile turns a file's findings into render entries, collapsing
// the gutter indicator of lines that carry several findings.
package reconcile

import (
	"fmt"

	"scancoord/internal/model"
)

// Suppressions answers whether a finding is currently ignored for a file.
type Suppressions interface {
	IsActiveSuppression(f model.Finding, path string, line int) bool
}

type noSuppressions struct{}

func (noSuppressions) IsActiveSuppression(model.Finding, string, int) bool { return false }

// None is a Suppressions that never suppresses anything.
var None Suppressions = noSuppressions{}

// Reconcile drops findings that are not actionable or are suppressed for
// path, then maps the rest to lines. Every surviving finding keeps its own
// entry, in input order. Per line, the first finding of the highest severity
// is the representative and its severity becomes the LineSeverity of every
// entry on that line.
func Reconcile(path string, findings []model.Finding, supp Suppressions, dark bool) []model.RenderEntry {
	if supp == nil {
		supp = None
	}
	entries := make([]model.RenderEntry, 0, len(findings))
	lead := make(map[int]int)

	for _, f := range findings {
		if !f.Severity.Actionable() {
			continue
		}
		line := f.Line()
		if supp.IsActiveSuppression(f, path, line) {
			continue
		}

		entries = append(entries, model.RenderEntry{
			Finding:  f.Clone(),
			Path:     path,
			Line:     line,
			Severity: f.Severity,
		})
		idx := len(entries) - 1

		cur, seen := lead[line]
		if !seen || f.Severity.Rank() > entries[cur].Severity.Rank() {
			lead[line] = idx
		}
	}

	for i := range entries {
		rep := lead[entries[i].Line]
		entries[i].LineSeverity = entries[rep].Severity
		entries[i].Representative = i == rep
		entries[i].Icon = Icon(entries[i].LineSeverity, dark)
	}
	return entries
}

// LineSeverities summarizes entries into one severity per line.
func LineSeverities(entries []model.RenderEntry) map[int]model.Severity {
	out := make(map[int]model.Severity, len(entries))
	for _, e := range entries {
		if e.Representative {
			out[e.Line] = e.LineSeverity
		}
	}
	return out
}

// Icon returns the gutter icon reference for severity under the given theme.
func Icon(sev model.Severity, dark bool) string {
	if dark {
		return fmt.Sprintf("icons/%s_dark.svg", sev)
	}
	return fmt.Sprintf("icons/%s.svg", sev)
}
