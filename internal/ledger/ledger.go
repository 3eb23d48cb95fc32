// Package ledger persists the findings a user chose to ignore, keyed by each
// category's natural key and tracked per file so they can be revived.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"scancoord/internal/logging"
	"scancoord/internal/model"
	"scancoord/internal/safefile"
)

const (
	FileName       = "suppressions.yaml"
	ActiveFileName = "active-suppressions.json"
	formatVersion  = 1
)

var ErrUnknownCategory = errors.New("unknown suppression category")

// Ledger is safe for concurrent use. Writers are serialized and persist the
// whole ledger; readers work on an immutable snapshot and never block.
type Ledger struct {
	mu         sync.Mutex
	entries    atomic.Pointer[[]Entry]
	path       string
	activePath string
	log        *zap.SugaredLogger
}

// Open loads the ledger stored in dir. A missing or unreadable ledger file
// yields an empty ledger; the next write recreates it.
func Open(dir string, log *zap.SugaredLogger) (*Ledger, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("ledger directory is required")
	}
	l := &Ledger{
		path:       filepath.Join(dir, FileName),
		activePath: filepath.Join(dir, ActiveFileName),
		log:        logging.OrNop(log).Named("ledger"),
	}
	entries, err := Load(l.path)
	if err != nil {
		l.log.Warnw("suppression ledger unreadable, starting empty", "path", l.path, "error", err)
		entries = nil
	}
	l.store(entries)
	return l, nil
}

func (l *Ledger) Path() string { return l.path }

func (l *Ledger) ActivePath() string { return l.activePath }

// Load reads a ledger file. Returns nil entries and nil error if the file
// does not exist. Entries without an active reference are dropped.
func Load(path string) ([]Entry, error) {
	data, err := safefile.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var lf ledgerFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]Entry, 0, len(lf.Suppressions))
	for i, r := range lf.Suppressions {
		e, err := fromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("suppression %d: %w", i+1, err)
		}
		if !e.HasActive() {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Save writes the full ledger.
func Save(path string, entries []Entry) error {
	lf := ledgerFile{Version: formatVersion, Suppressions: make([]record, 0, len(entries))}
	for _, e := range entries {
		if !e.HasActive() {
			continue
		}
		lf.Suppressions = append(lf.Suppressions, toRecord(e))
	}
	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshal suppressions: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("write suppressions: %w", err)
	}
	return nil
}

// SaveActive writes the active-only listing used for fast external lookups.
func SaveActive(path string, entries []Entry) error {
	af := activeFile{Version: formatVersion, Suppressions: make([]record, 0, len(entries))}
	for _, e := range Active(entries) {
		af.Suppressions = append(af.Suppressions, toRecord(e))
	}
	data, err := json.MarshalIndent(af, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal active suppressions: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("write active suppressions: %w", err)
	}
	return nil
}

// Active projects entries onto those with at least one active reference,
// each trimmed to its active references.
func Active(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		refs := e.ActiveFiles()
		if len(refs) == 0 {
			continue
		}
		e.Files = refs
		out = append(out, e)
	}
	return out
}

// Suppress records f as ignored in path. An existing entry with the same
// natural key gains (or reactivates) the file reference; otherwise a new
// entry is created.
func (l *Ledger) Suppress(f model.Finding, path string, line int) error {
	_, err := l.suppressBatch([]model.Finding{f}, path, func(model.Finding) int { return line })
	return err
}

// SuppressAllOfCategory suppresses every finding of category in path, each at
// its own line, and persists once. It returns how many findings were recorded.
func (l *Ledger) SuppressAllOfCategory(category model.Category, findings []model.Finding, path string) (int, error) {
	matching := make([]model.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Category == category {
			matching = append(matching, f)
		}
	}
	if len(matching) == 0 {
		return 0, nil
	}
	return l.suppressBatch(matching, path, model.Finding.Line)
}

func (l *Ledger) suppressBatch(findings []model.Finding, path string, lineOf func(model.Finding) int) (int, error) {
	path = normalizePath(path)
	if path == "" {
		return 0, fmt.Errorf("suppression path is required")
	}
	additions := make([]Entry, 0, len(findings))
	for _, f := range findings {
		e, err := EntryFor(f)
		if err != nil {
			return 0, err
		}
		e.Files = []FileReference{{Path: path, Line: lineOf(f), Active: true}}
		additions = append(additions, e)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.copyEntries()
	for _, add := range additions {
		idx := indexOf(next, add.Key)
		if idx < 0 {
			next = append(next, add)
			continue
		}
		next[idx] = addReference(next[idx], add.Files[0])
	}
	l.store(next)
	return len(additions), l.persist(next)
}

func addReference(e Entry, ref FileReference) Entry {
	for i := range e.Files {
		if e.Files[i].Path == ref.Path && e.Files[i].Line == ref.Line {
			e.Files[i].Active = true
			return e
		}
	}
	e.Files = append(e.Files, ref)
	return e
}

// IsActiveSuppression reports whether an entry with f's natural key has an
// active reference for path. The line is not compared: a suppression covers
// the finding type across the whole file.
func (l *Ledger) IsActiveSuppression(f model.Finding, path string, line int) bool {
	key, err := model.KeyOf(f)
	if err != nil {
		return false
	}
	path = normalizePath(path)
	for _, e := range l.snapshot() {
		if e.Key != key {
			continue
		}
		for _, ref := range e.Files {
			if ref.Active && ref.Path == path {
				return true
			}
		}
		return false
	}
	return false
}

// ListActive returns the active-only projection of the ledger.
func (l *Ledger) ListActive() []Entry {
	return cloneAll(Active(l.snapshot()))
}

// Entries returns the full ledger.
func (l *Ledger) Entries() []Entry {
	return cloneAll(l.snapshot())
}

// Revive un-suppresses the entry matching e's natural key (and therefore its
// category) everywhere: every file reference becomes inactive and the entry
// is removed. It returns false when no such entry exists.
func (l *Ledger) Revive(e Entry) bool {
	if e.Key == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.copyEntries()
	idx := indexOf(next, e.Key)
	if idx < 0 {
		return false
	}
	for i := range next[idx].Files {
		next[idx].Files[i].Active = false
	}
	if !next[idx].HasActive() {
		next = append(next[:idx], next[idx+1:]...)
	}
	l.store(next)
	_ = l.persist(next)
	return true
}

// ReviveMany revives each entry independently and reports per-entry success.
func (l *Ledger) ReviveMany(entries []Entry) []bool {
	out := make([]bool, len(entries))
	for i, e := range entries {
		out[i] = l.Revive(e)
	}
	return out
}

// persist writes both files. Failures are logged and returned; the in-memory
// snapshot stays the source of truth until the next successful write.
func (l *Ledger) persist(entries []Entry) error {
	var errs []error
	if err := Save(l.path, entries); err != nil {
		l.log.Errorw("persist suppression ledger", "path", l.path, "error", err)
		errs = append(errs, err)
	}
	if err := SaveActive(l.activePath, entries); err != nil {
		l.log.Errorw("persist active suppressions", "path", l.activePath, "error", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		l.log.Debugw("suppression ledger saved", "entries", len(entries))
	}
	return errors.Join(errs...)
}

func (l *Ledger) snapshot() []Entry {
	p := l.entries.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (l *Ledger) store(entries []Entry) {
	l.entries.Store(&entries)
}

// copyEntries deep-copies the snapshot so the published one is never touched.
func (l *Ledger) copyEntries() []Entry {
	return cloneAll(l.snapshot())
}

func cloneAll(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = e.clone()
	}
	return out
}

func indexOf(entries []Entry, key model.NaturalKey) int {
	for i, e := range entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(p))
}
