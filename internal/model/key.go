package model

import (
	"fmt"
	"strings"
)

// NaturalKey identifies "the same finding" across scans for suppression
// matching. Each category has its own variant; keys compare with ==, and two
// keys of different variants are never equal.
type NaturalKey interface {
	Category() Category
	String() string
	naturalKey()
}

type DependencyKey struct {
	Manager string
	Name    string
	Version string
}

type SecretKey struct {
	Title string
	Value string
}

type ContainerKey struct {
	Image string
	Tag   string
}

type IaCKey struct {
	Title        string
	SimilarityID string
}

type CodeKey struct {
	Title  string
	RuleID string
}

func (DependencyKey) Category() Category { return CategoryDependency }
func (SecretKey) Category() Category     { return CategorySecret }
func (ContainerKey) Category() Category  { return CategoryContainer }
func (IaCKey) Category() Category        { return CategoryIaC }
func (CodeKey) Category() Category       { return CategoryCode }

func (DependencyKey) naturalKey() {}
func (SecretKey) naturalKey()     {}
func (ContainerKey) naturalKey()  {}
func (IaCKey) naturalKey()        {}
func (CodeKey) naturalKey()       {}

func (k DependencyKey) String() string {
	return fmt.Sprintf("%s:%s@%s", k.Manager, k.Name, k.Version)
}

// String never includes the secret value itself.
func (k SecretKey) String() string {
	return fmt.Sprintf("secret:%s", k.Title)
}

func (k ContainerKey) String() string {
	return fmt.Sprintf("%s:%s", k.Image, k.Tag)
}

func (k IaCKey) String() string {
	return fmt.Sprintf("iac:%s#%s", k.Title, k.SimilarityID)
}

func (k CodeKey) String() string {
	return fmt.Sprintf("code:%s#%s", k.Title, k.RuleID)
}

// KeyOf builds the natural key for a finding from the fields of its category.
func KeyOf(f Finding) (NaturalKey, error) {
	switch f.Category {
	case CategoryDependency:
		return DependencyKey{
			Manager: norm(f.PackageManager),
			Name:    strings.TrimSpace(f.PackageName),
			Version: strings.TrimSpace(f.PackageVersion),
		}, nil
	case CategorySecret:
		return SecretKey{Title: strings.TrimSpace(f.Title), Value: f.SecretValue}, nil
	case CategoryContainer:
		return ContainerKey{Image: strings.TrimSpace(f.ImageName), Tag: strings.TrimSpace(f.ImageTag)}, nil
	case CategoryIaC:
		return IaCKey{Title: strings.TrimSpace(f.Title), SimilarityID: strings.TrimSpace(f.SimilarityID)}, nil
	case CategoryCode:
		return CodeKey{Title: strings.TrimSpace(f.Title), RuleID: strings.TrimSpace(f.RuleID)}, nil
	default:
		return nil, fmt.Errorf("no natural key for category %q", f.Category)
	}
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
