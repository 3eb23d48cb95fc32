// Package session wires the stamp cache, finding store, suppression ledger and
// scan scheduler for one workspace. Every piece of per-workspace state hangs
// off a Session, so closing it releases everything at once.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scancoord/internal/ledger"
	"scancoord/internal/logging"
	"scancoord/internal/model"
	"scancoord/internal/progress"
	"scancoord/internal/reconcile"
	"scancoord/internal/schedule"
	"scancoord/internal/stamp"
	"scancoord/internal/store"
)

var ErrClosed = errors.New("session is closed")

// Presenter receives the render entries of a file whenever they change.
// Calls may come from scheduler goroutines. nil entries mean the file is no
// longer tracked.
type Presenter interface {
	FindingsChanged(path string, entries []model.RenderEntry)
}

type PresenterFunc func(path string, entries []model.RenderEntry)

func (f PresenterFunc) FindingsChanged(path string, entries []model.RenderEntry) {
	f(path, entries)
}

type Options struct {
	// Root is the workspace root. LedgerDir defaults to <Root>/.scancoord.
	Root      string
	LedgerDir string
	Debounce  time.Duration
	Workers   int
	Logger    *zap.SugaredLogger
	Sink      progress.Sink
	Presenter Presenter
}

// Stamps are the host's modification counters for one file.
type Stamps struct {
	Buffer   uint64
	Document uint64
	Disk     uint64
}

func (s Stamps) Composite() uint64 {
	return stamp.Composite(s.Buffer, s.Document, s.Disk)
}

// Request is one inspection pass over a file.
type Request struct {
	Path   string
	Stamps Stamps
	Dark   bool
	// Scan runs the engines for Path. A nil Scan only re-renders.
	Scan schedule.ScanFunc
}

type Session struct {
	id        string
	root      string
	log       *zap.SugaredLogger
	sink      progress.Sink
	presenter Presenter

	cache  *stamp.Cache
	store  *store.Store
	ledger *ledger.Ledger
	sched  *schedule.Scheduler

	unsubscribe func()
	closed      atomic.Bool
	closeOnce   sync.Once
}

func Open(opts Options) (*Session, error) {
	dir := strings.TrimSpace(opts.LedgerDir)
	if dir == "" {
		if strings.TrimSpace(opts.Root) == "" {
			return nil, fmt.Errorf("session needs a workspace root or ledger dir")
		}
		dir = filepath.Join(opts.Root, ".scancoord")
	}

	id := uuid.NewString()
	log := logging.OrNop(opts.Logger).With("session", id)
	sink := opts.Sink
	if sink == nil {
		sink = progress.NoopSink{}
	}

	led, err := ledger.Open(dir, log)
	if err != nil {
		return nil, fmt.Errorf("open suppression ledger: %w", err)
	}

	s := &Session{
		id:        id,
		root:      opts.Root,
		log:       log.Named("session"),
		sink:      sink,
		presenter: opts.Presenter,
		cache:     stamp.NewCache(),
		store:     store.New(),
		ledger:    led,
	}
	s.sched = schedule.New(s.store, schedule.Options{
		Debounce:  opts.Debounce,
		Workers:   opts.Workers,
		Logger:    log,
		Sink:      sink,
		SessionID: id,
		OnFailure: s.cache.ForgetStamp,
	})
	s.unsubscribe = s.store.Subscribe(store.ListenerFunc(s.findingsReplaced))
	s.log.Debugw("session opened", "root", opts.Root, "ledger", led.Path())
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Root() string { return s.root }

// Inspect runs one inspection pass. An unchanged file is answered from the
// store; a changed one is scheduled for a debounced rescan and the entries
// known so far are returned. Fresh entries reach the Presenter once the scan
// lands.
func (s *Session) Inspect(req Request) []model.RenderEntry {
	if s.closed.Load() {
		return nil
	}
	path := cleanPath(req.Path)
	if path == "" {
		return nil
	}

	composite := req.Stamps.Composite()
	if s.cache.IsStale(path, composite) && req.Scan != nil {
		s.cache.Update(path, composite)
		if !s.sched.Schedule(path, req.Scan) {
			if s.closed.Load() {
				return nil
			}
			s.log.Debugw("scheduler refused, scanning synchronously", "path", path)
			s.store.Replace(path, s.sched.RunNow(context.Background(), path, req.Scan))
		}
	}
	return s.render(path, req.Dark)
}

// render returns the entries for path under the given theme, reconciling
// again when nothing is cached or the theme changed since the last pass.
func (s *Session) render(path string, dark bool) []model.RenderEntry {
	findings, generation, ok := s.store.Snapshot(path)
	if !ok {
		s.cache.SetTheme(path, dark)
		return nil
	}
	if !s.cache.ThemeChanged(path, dark) {
		if entries, ok := s.store.GetRendered(path); ok {
			return entries
		}
	}
	entries := reconcile.Reconcile(path, findings, s.ledger, dark)
	s.store.SetRendered(path, generation, entries)
	s.cache.SetTheme(path, dark)
	return entries
}

// findingsReplaced is the store listener.
func (s *Session) findingsReplaced(path string, findings []model.Finding) {
	if s.closed.Load() {
		return
	}
	if findings == nil {
		s.present(path, nil)
		return
	}
	s.emit(progress.Event{Type: progress.EventFindingsChanged, Path: path, FindingCount: len(findings)})
	s.rerender(path)
}

func (s *Session) rerender(path string) {
	s.store.InvalidateRendered(path)
	dark, _ := s.cache.Theme(path)
	entries := s.render(path, dark)
	if entries == nil {
		if _, ok := s.store.Get(path); !ok {
			return
		}
		entries = []model.RenderEntry{}
	}
	s.present(path, entries)
}

func (s *Session) present(path string, entries []model.RenderEntry) {
	if s.presenter != nil {
		s.presenter.FindingsChanged(path, entries)
	}
}

// Rendered returns the last render entries for path without triggering work.
func (s *Session) Rendered(path string) ([]model.RenderEntry, bool) {
	return s.store.GetRendered(cleanPath(path))
}

func (s *Session) Findings(path string) ([]model.Finding, bool) {
	return s.store.Get(cleanPath(path))
}

// Paths lists the files the session currently holds findings for.
func (s *Session) Paths() []string {
	return s.store.Paths()
}

// CloseFile drops all state of path, disarming any pending scan.
func (s *Session) CloseFile(path string) {
	path = cleanPath(path)
	if path == "" {
		return
	}
	s.sched.Forget(path)
	s.cache.Forget(path)
	s.store.Remove(path)
}

// Suppress ignores f for path and re-renders the file.
func (s *Session) Suppress(f model.Finding, path string, line int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	path = cleanPath(path)
	if err := s.ledger.Suppress(f, path, line); err != nil {
		return err
	}
	s.suppressionChanged(fmt.Sprintf("suppressed %s", f.Title), path)
	return nil
}

// SuppressAllOfCategory ignores every finding of category for path. With nil
// findings the file's stored findings are used.
func (s *Session) SuppressAllOfCategory(category model.Category, findings []model.Finding, path string) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	path = cleanPath(path)
	if findings == nil {
		findings, _ = s.store.Get(path)
	}
	n, err := s.ledger.SuppressAllOfCategory(category, findings, path)
	if n > 0 {
		s.suppressionChanged(fmt.Sprintf("suppressed %d %s findings", n, category), path)
	}
	return n, err
}

func (s *Session) Revive(e ledger.Entry) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	ok := s.ledger.Revive(e)
	if ok {
		s.suppressionChanged("revived "+e.Title, s.store.Paths()...)
	}
	return ok, nil
}

func (s *Session) ReviveMany(entries []ledger.Entry) ([]bool, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	results := s.ledger.ReviveMany(entries)
	for _, ok := range results {
		if ok {
			s.suppressionChanged(fmt.Sprintf("revived %d entries", countTrue(results)), s.store.Paths()...)
			break
		}
	}
	return results, nil
}

// ListActive returns the suppressions that currently hide findings.
func (s *Session) ListActive() []ledger.Entry {
	return s.ledger.ListActive()
}

func (s *Session) Ledger() *ledger.Ledger { return s.ledger }

func (s *Session) suppressionChanged(msg string, paths ...string) {
	s.emit(progress.Event{Type: progress.EventSuppressionChanged, Message: msg})
	for _, p := range paths {
		if _, ok := s.store.Get(p); ok {
			s.rerender(p)
		}
	}
}

// Wait blocks until no scan is pending or running.
func (s *Session) Wait() {
	s.sched.Wait()
}

// Close stops all scans and releases per-file state. Later calls on the
// session are no-ops or return ErrClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.sched.Close()
		s.unsubscribe()
		s.cache.Reset()
		s.emit(progress.Event{Type: progress.EventSessionClosed})
		s.log.Debugw("session closed")
	})
}

func (s *Session) emit(e progress.Event) {
	e.SessionID = s.id
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.sink.Emit(e)
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

func countTrue(in []bool) int {
	n := 0
	for _, b := range in {
		if b {
			n++
		}
	}
	return n
}
