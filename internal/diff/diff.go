// Package diff compares two scan reports by finding identity.
package diff

import (
	"sort"
	"strings"

	"scancoord/internal/model"
	"scancoord/internal/report"
)

// DiffSummary holds aggregate counts for a baseline comparison.
type DiffSummary struct {
	NewCount       int `json:"new_count"`
	FixedCount     int `json:"fixed_count"`
	UnchangedCount int `json:"unchanged_count"`
}

// Item is one finding together with the file it was reported for.
type Item struct {
	Path    string        `json:"path"`
	Line    int           `json:"line"`
	Finding model.Finding `json:"finding"`
}

// DiffReport is the result of comparing a current scan against a baseline.
type DiffReport struct {
	New       []Item      `json:"new"`
	Fixed     []Item      `json:"fixed"`
	Unchanged []Item      `json:"unchanged"`
	Summary   DiffSummary `json:"summary"`
}

// Compare identifies new, fixed and unchanged findings of current relative
// to baseline. Findings are matched per file by natural key, so a finding
// that only moved lines is unchanged.
func Compare(baseline, current report.Report) DiffReport {
	baseKeys := index(baseline)
	currKeys := index(current)

	var newItems, fixed, unchanged []Item
	for key, it := range currKeys {
		if _, inBase := baseKeys[key]; inBase {
			unchanged = append(unchanged, it)
		} else {
			newItems = append(newItems, it)
		}
	}
	for key, it := range baseKeys {
		if _, inCurr := currKeys[key]; !inCurr {
			fixed = append(fixed, it)
		}
	}

	sortItems(newItems)
	sortItems(fixed)
	sortItems(unchanged)

	return DiffReport{
		New:       newItems,
		Fixed:     fixed,
		Unchanged: unchanged,
		Summary: DiffSummary{
			NewCount:       len(newItems),
			FixedCount:     len(fixed),
			UnchangedCount: len(unchanged),
		},
	}
}

// CountAtOrAbove returns how many new findings rank at or above threshold.
func (d DiffReport) CountAtOrAbove(threshold model.Severity) int {
	n := 0
	for _, it := range d.New {
		if it.Finding.Severity.Rank() >= threshold.Rank() {
			n++
		}
	}
	return n
}

func index(r report.Report) map[string]Item {
	out := make(map[string]Item)
	for _, file := range r.Files {
		for _, e := range file.Entries {
			out[findingKey(file.Path, e.Finding)] = Item{Path: file.Path, Line: e.Line, Finding: e.Finding}
		}
	}
	return out
}

func findingKey(path string, f model.Finding) string {
	id := strings.ToLower(strings.TrimSpace(f.Engine)) + ":" + strings.TrimSpace(f.ID)
	if key, err := model.KeyOf(f); err == nil {
		id = key.String()
	}
	return path + "|" + id
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Finding.Severity.Rank(), items[j].Finding.Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		if items[i].Path != items[j].Path {
			return items[i].Path < items[j].Path
		}
		if items[i].Line != items[j].Line {
			return items[i].Line < items[j].Line
		}
		return items[i].Finding.Title < items[j].Finding.Title
	})
}
