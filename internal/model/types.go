package model

import "strings"

type Category string

const (
	CategoryDependency Category = "dependency"
	CategorySecret     Category = "secret"
	CategoryContainer  Category = "container"
	CategoryIaC        Category = "iac"
	CategoryCode       Category = "code"
)

var AllCategories = []Category{CategoryDependency, CategorySecret, CategoryContainer, CategoryIaC, CategoryCode}

// ParseCategory accepts the canonical names plus the aliases engines tend to emit.
func ParseCategory(raw string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "dependency", "dependencies", "sca", "package":
		return CategoryDependency, true
	case "secret", "secrets":
		return CategorySecret, true
	case "container", "containers", "image":
		return CategoryContainer, true
	case "iac", "infra", "infra-as-code", "kics":
		return CategoryIaC, true
	case "code", "sast", "asca", "rule":
		return CategoryCode, true
	default:
		return "", false
	}
}

// Location is a 1-based line plus an optional column range on that line.
type Location struct {
	Line        int `json:"line" yaml:"line"`
	StartColumn int `json:"start_column,omitempty" yaml:"start_column,omitempty"`
	EndColumn   int `json:"end_column,omitempty" yaml:"end_column,omitempty"`
}

// Finding is one issue reported by a scan engine. Findings are treated as
// values: a file's set is replaced wholesale, individual findings are never edited.
type Finding struct {
	ID          string     `json:"id"`
	Engine      string     `json:"engine,omitempty"`
	Category    Category   `json:"category"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Severity    Severity   `json:"severity"`
	Locations   []Location `json:"locations,omitempty"`

	PackageManager string `json:"package_manager,omitempty"`
	PackageName    string `json:"package_name,omitempty"`
	PackageVersion string `json:"package_version,omitempty"`
	SecretValue    string `json:"secret_value,omitempty"`
	ImageName      string `json:"image_name,omitempty"`
	ImageTag       string `json:"image_tag,omitempty"`
	SimilarityID   string `json:"similarity_id,omitempty"`
	RuleID         string `json:"rule_id,omitempty"`
}

// Line returns the line the finding is anchored to: its first location, or
// line 1 when the engine reported none.
func (f Finding) Line() int {
	if len(f.Locations) == 0 || f.Locations[0].Line < 1 {
		return 1
	}
	return f.Locations[0].Line
}

// Clone copies the slices held by the finding.
func (f Finding) Clone() Finding {
	if f.Locations != nil {
		locs := make([]Location, len(f.Locations))
		copy(locs, f.Locations)
		f.Locations = locs
	}
	return f
}

func CloneFindings(in []Finding) []Finding {
	if in == nil {
		return nil
	}
	out := make([]Finding, len(in))
	for i, f := range in {
		out[i] = f.Clone()
	}
	return out
}
