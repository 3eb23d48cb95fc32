// Package report exports reconciled findings as JSON, Markdown or SARIF.
package report

import (
	"sort"
	"time"

	"scancoord/internal/model"
	"scancoord/internal/redact"
)

type FileResult struct {
	Path    string              `json:"path"`
	Entries []model.RenderEntry `json:"entries"`
}

type Report struct {
	Tool             string         `json:"tool"`
	Version          string         `json:"version"`
	GeneratedAt      time.Time      `json:"generated_at"`
	Files            []FileResult   `json:"files"`
	CountsBySeverity map[string]int `json:"counts_by_severity"`
	Suppressed       int            `json:"suppressed,omitempty"`
	Errors           []string       `json:"errors,omitempty"`
}

// New builds a report over files. Files are sorted by path.
func New(version string, files []FileResult) Report {
	sorted := make([]FileResult, 0, len(files))
	counts := map[string]int{}
	for _, f := range files {
		f.Entries = model.CloneEntries(f.Entries)
		for _, e := range f.Entries {
			counts[e.Severity.String()]++
		}
		sorted = append(sorted, f)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	return Report{
		Tool:             "scancoord",
		Version:          version,
		GeneratedAt:      time.Now().UTC(),
		Files:            sorted,
		CountsBySeverity: counts,
	}
}

func (r Report) Total() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Entries)
	}
	return n
}

// redactReport masks detected secret values and secret-like text so exports
// never carry the credential itself.
func redactReport(in Report) Report {
	in.Errors = redact.Strings(in.Errors)
	files := make([]FileResult, 0, len(in.Files))
	for _, f := range in.Files {
		entries := model.CloneEntries(f.Entries)
		for i := range entries {
			fd := &entries[i].Finding
			fd.SecretValue = redact.Secret(fd.SecretValue)
			fd.Title = redact.Text(fd.Title)
			fd.Description = redact.Text(fd.Description)
		}
		f.Entries = entries
		files = append(files, f)
	}
	in.Files = files
	return in
}
