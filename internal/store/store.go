// Package store holds the current findings of every open file together with
// their render-ready entries, and tells subscribers when a file's set changes.
package store

import (
	"sort"
	"sync"

	"scancoord/internal/model"
)

// Listener is notified after a file's findings were replaced or removed.
// Removal is reported with nil findings.
type Listener interface {
	FindingsChanged(path string, findings []model.Finding)
}

type ListenerFunc func(path string, findings []model.Finding)

func (f ListenerFunc) FindingsChanged(path string, findings []model.Finding) {
	f(path, findings)
}

// record is never modified after it is published; writers build a new one.
type record struct {
	findings    []model.Finding
	rendered    []model.RenderEntry
	hasRendered bool
	generation  uint64
}

type Store struct {
	mu      sync.RWMutex
	files   map[string]*record
	nextGen uint64

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

func New() *Store {
	return &Store{
		files:     make(map[string]*record),
		listeners: make(map[int]Listener),
	}
}

// Replace swaps the finding set for path and drops its rendered entries.
func (s *Store) Replace(path string, findings []model.Finding) {
	rec := &record{findings: model.CloneFindings(findings)}
	if rec.findings == nil {
		rec.findings = []model.Finding{}
	}

	s.mu.Lock()
	s.nextGen++
	rec.generation = s.nextGen
	s.files[path] = rec
	s.mu.Unlock()

	s.notify(path, model.CloneFindings(rec.findings))
}

// Get returns a copy of the findings for path. ok is false if the path was
// never scanned.
func (s *Store) Get(path string) (findings []model.Finding, ok bool) {
	rec := s.load(path)
	if rec == nil {
		return nil, false
	}
	return model.CloneFindings(rec.findings), true
}

func (s *Store) Remove(path string) {
	s.mu.Lock()
	_, existed := s.files[path]
	delete(s.files, path)
	s.mu.Unlock()

	if existed {
		s.notify(path, nil)
	}
}

// SetRendered caches entries for path. Entries computed from a finding set
// that has since been replaced are discarded.
func (s *Store) SetRendered(path string, generation uint64, entries []model.RenderEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.files[path]
	if !ok || cur.generation != generation {
		return false
	}
	s.files[path] = &record{
		findings:    cur.findings,
		rendered:    model.CloneEntries(entries),
		hasRendered: true,
		generation:  cur.generation,
	}
	return true
}

func (s *Store) GetRendered(path string) ([]model.RenderEntry, bool) {
	rec := s.load(path)
	if rec == nil || !rec.hasRendered {
		return nil, false
	}
	return model.CloneEntries(rec.rendered), true
}

// InvalidateRendered forgets the cached entries for path without touching
// its findings.
func (s *Store) InvalidateRendered(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.files[path]
	if !ok || !cur.hasRendered {
		return
	}
	s.files[path] = &record{findings: cur.findings, generation: cur.generation}
}

// Snapshot returns the findings of path with the generation they belong to,
// for callers that later hand rendered entries back through SetRendered.
func (s *Store) Snapshot(path string) (findings []model.Finding, generation uint64, ok bool) {
	rec := s.load(path)
	if rec == nil {
		return nil, 0, false
	}
	return model.CloneFindings(rec.findings), rec.generation, true
}

func (s *Store) Paths() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Subscribe registers l and returns a function that unregisters it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

func (s *Store) load(path string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files[path]
}

func (s *Store) notify(path string, findings []model.Finding) {
	s.lmu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, s.listeners[id])
	}
	s.lmu.Unlock()

	for _, l := range ls {
		l.FindingsChanged(path, findings)
	}
}
