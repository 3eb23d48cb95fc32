// Package engine is the boundary to the external static-analysis tools.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"scancoord/internal/model"
	"scancoord/internal/schedule"
)

// Engine scans one file. Implementations may be called from any goroutine.
type Engine interface {
	Name() string
	Scan(ctx context.Context, path string, content Content) ([]model.Finding, error)
}

// Content gives engines access to the file being scanned, which may be an
// unsaved editor buffer rather than what is on disk.
type Content interface {
	Bytes() ([]byte, error)
}

type FileContent string

func (p FileContent) Bytes() ([]byte, error) {
	return os.ReadFile(string(p))
}

type BytesContent []byte

func (b BytesContent) Bytes() ([]byte, error) {
	return []byte(b), nil
}

// Func adapts a function into an Engine.
type Func struct {
	EngineName string
	Fn         func(ctx context.Context, path string, content Content) ([]model.Finding, error)
}

func (f Func) Name() string { return f.EngineName }

func (f Func) Scan(ctx context.Context, path string, content Content) ([]model.Finding, error) {
	return f.Fn(ctx, path, content)
}

// ScanFunc binds an engine to one file for the scheduler.
func ScanFunc(e Engine, path string, content Content) schedule.ScanFunc {
	return func(ctx context.Context) ([]model.Finding, error) {
		return e.Scan(ctx, path, content)
	}
}

// normalize fills engine/ID defaults and drops findings without a title.
func normalize(in []model.Finding, engineName string) []model.Finding {
	out := make([]model.Finding, 0, len(in))
	for _, f := range in {
		f.Title = strings.TrimSpace(f.Title)
		f.Description = strings.TrimSpace(f.Description)
		if f.Title == "" {
			continue
		}
		if f.Engine == "" {
			f.Engine = engineName
		}
		if f.Severity == "" {
			f.Severity = model.SeverityUnknown
		}
		if f.ID == "" {
			f.ID = autoID(f)
		}
		out = append(out, f)
	}
	return out
}

func autoID(f model.Finding) string {
	parts := []string{
		f.Engine,
		string(f.Category),
		f.Title,
		f.RuleID,
		f.PackageName,
		f.PackageVersion,
		f.ImageName,
		f.ImageTag,
		f.SimilarityID,
		fmt.Sprint(f.Line()),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return f.Engine + "-" + hex.EncodeToString(sum[:6])
}
