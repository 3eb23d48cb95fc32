package model

// RenderEntry is one render-ready problem for the presentation layer. Every
// surviving finding gets its own entry; entries that share a line also share
// LineSeverity, and exactly one of them is the line's Representative.
type RenderEntry struct {
	Finding        Finding  `json:"finding"`
	Path           string   `json:"path"`
	Line           int      `json:"line"`
	Severity       Severity `json:"severity"`
	LineSeverity   Severity `json:"line_severity"`
	Representative bool     `json:"representative"`
	Icon           string   `json:"icon"`
}

func CloneEntries(in []RenderEntry) []RenderEntry {
	if in == nil {
		return nil
	}
	out := make([]RenderEntry, len(in))
	for i, e := range in {
		e.Finding = e.Finding.Clone()
		out[i] = e
	}
	return out
}
