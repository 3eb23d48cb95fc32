package ledger

import (
	"fmt"
	"strings"

	"scancoord/internal/model"
)

// FileReference records one place a suppressed finding was ignored.
type FileReference struct {
	Path   string `yaml:"path" json:"path"`
	Line   int    `yaml:"line" json:"line"`
	Active bool   `yaml:"active" json:"active"`
}

// Entry is one suppressed finding type. Title, Description and Severity are
// a snapshot taken when it was first suppressed, for display without a rescan.
type Entry struct {
	Key         model.NaturalKey
	Title       string
	Description string
	Severity    model.Severity
	Files       []FileReference
}

func (e Entry) Category() model.Category {
	if e.Key == nil {
		return ""
	}
	return e.Key.Category()
}

// ActiveFiles returns the references that still suppress the finding.
func (e Entry) ActiveFiles() []FileReference {
	out := make([]FileReference, 0, len(e.Files))
	for _, ref := range e.Files {
		if ref.Active {
			out = append(out, ref)
		}
	}
	return out
}

func (e Entry) HasActive() bool {
	for _, ref := range e.Files {
		if ref.Active {
			return true
		}
	}
	return false
}

func (e Entry) clone() Entry {
	files := make([]FileReference, len(e.Files))
	copy(files, e.Files)
	e.Files = files
	return e
}

// EntryFor builds the entry a finding would be suppressed under, without any
// file references. It is what Revive needs to address a finding's entry.
func EntryFor(f model.Finding) (Entry, error) {
	key, err := model.KeyOf(f)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrUnknownCategory, err)
	}
	return Entry{
		Key:         key,
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		Severity:    f.Severity,
	}, nil
}

// record is the persisted form of an Entry. Only the key fields of the
// entry's category are populated.
type record struct {
	Category       model.Category  `yaml:"category" json:"category"`
	Title          string          `yaml:"title,omitempty" json:"title,omitempty"`
	Description    string          `yaml:"description,omitempty" json:"description,omitempty"`
	Severity       model.Severity  `yaml:"severity,omitempty" json:"severity,omitempty"`
	PackageManager string          `yaml:"package_manager,omitempty" json:"package_manager,omitempty"`
	PackageName    string          `yaml:"package_name,omitempty" json:"package_name,omitempty"`
	PackageVersion string          `yaml:"package_version,omitempty" json:"package_version,omitempty"`
	SecretValue    string          `yaml:"secret_value,omitempty" json:"secret_value,omitempty"`
	ImageName      string          `yaml:"image_name,omitempty" json:"image_name,omitempty"`
	ImageTag       string          `yaml:"image_tag,omitempty" json:"image_tag,omitempty"`
	SimilarityID   string          `yaml:"similarity_id,omitempty" json:"similarity_id,omitempty"`
	RuleID         string          `yaml:"rule_id,omitempty" json:"rule_id,omitempty"`
	Files          []FileReference `yaml:"files" json:"files"`
}

// ledgerFile is the top-level structure of suppressions.yaml.
type ledgerFile struct {
	Version      int      `yaml:"version"`
	Suppressions []record `yaml:"suppressions"`
}

// activeFile is the top-level structure of the active-only listing.
type activeFile struct {
	Version      int      `json:"version"`
	Suppressions []record `json:"suppressions"`
}

func toRecord(e Entry) record {
	r := record{
		Title:       e.Title,
		Description: e.Description,
		Severity:    e.Severity,
		Files:       append([]FileReference(nil), e.Files...),
	}
	if r.Files == nil {
		r.Files = []FileReference{}
	}
	switch k := e.Key.(type) {
	case model.DependencyKey:
		r.Category = model.CategoryDependency
		r.PackageManager = k.Manager
		r.PackageName = k.Name
		r.PackageVersion = k.Version
	case model.SecretKey:
		r.Category = model.CategorySecret
		r.Title = k.Title
		r.SecretValue = k.Value
	case model.ContainerKey:
		r.Category = model.CategoryContainer
		r.ImageName = k.Image
		r.ImageTag = k.Tag
	case model.IaCKey:
		r.Category = model.CategoryIaC
		r.Title = k.Title
		r.SimilarityID = k.SimilarityID
	case model.CodeKey:
		r.Category = model.CategoryCode
		r.Title = k.Title
		r.RuleID = k.RuleID
	}
	return r
}

func fromRecord(r record) (Entry, error) {
	cat, ok := model.ParseCategory(string(r.Category))
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownCategory, r.Category)
	}
	f := model.Finding{
		Category:       cat,
		Title:          r.Title,
		Description:    r.Description,
		Severity:       r.Severity,
		PackageManager: r.PackageManager,
		PackageName:    r.PackageName,
		PackageVersion: r.PackageVersion,
		SecretValue:    r.SecretValue,
		ImageName:      r.ImageName,
		ImageTag:       r.ImageTag,
		SimilarityID:   r.SimilarityID,
		RuleID:         r.RuleID,
	}
	e, err := EntryFor(f)
	if err != nil {
		return Entry{}, err
	}
	for _, ref := range r.Files {
		ref.Path = normalizePath(ref.Path)
		if ref.Path == "" {
			continue
		}
		e.Files = append(e.Files, ref)
	}
	return e, nil
}
