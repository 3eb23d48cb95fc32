// Package schedule debounces scan requests per file and runs the surviving
// ones on a shared, bounded worker pool.
//
// Coalescing works by tagging instead of cancelling: every request stores a
// new marker for its path and arms a timer bound to that marker. When the
// timer fires it only proceeds if the marker is still the latest one, so a
// burst of edits yields a single scan once the file has been quiet for the
// debounce window.
package schedule

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"scancoord/internal/logging"
	"scancoord/internal/model"
	"scancoord/internal/progress"
)

const DefaultDebounce = time.Second

// ScanFunc runs the scan engines for one file.
type ScanFunc func(ctx context.Context) ([]model.Finding, error)

// Results receives the findings of every executed scan.
type Results interface {
	Replace(path string, findings []model.Finding)
}

type Options struct {
	Debounce  time.Duration
	Workers   int
	Logger    *zap.SugaredLogger
	Sink      progress.Sink
	SessionID string
	// OnFailure is called with the path of every failed scan before its
	// empty result is written.
	OnFailure func(path string)
}

type job struct {
	token uint64
	fn    ScanFunc
}

// lane serializes executions for one path. pending holds at most one job;
// a newer one replaces it.
type lane struct {
	running bool
	pending *job
}

type Scheduler struct {
	opts    Options
	results Results
	pool    *semaphore.Weighted
	log     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	idle        *sync.Cond
	closed      bool
	seq         uint64
	latest      map[string]uint64
	timers      map[uint64]*time.Timer
	lanes       map[string]*lane
	outstanding int
}

func New(results Results, opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Sink == nil {
		opts.Sink = progress.NoopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		opts:    opts,
		results: results,
		pool:    semaphore.NewWeighted(int64(opts.Workers)),
		log:     logging.OrNop(opts.Logger).Named("scheduler"),
		ctx:     ctx,
		cancel:  cancel,
		latest:  make(map[string]uint64),
		timers:  make(map[uint64]*time.Timer),
		lanes:   make(map[string]*lane),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Schedule requests a scan of path once it has been quiet for the debounce
// window. It never blocks. It returns false when the scheduler no longer
// accepts work, in which case the caller should scan synchronously.
func (s *Scheduler) Schedule(path string, fn ScanFunc) bool {
	if fn == nil || strings.TrimSpace(path) == "" {
		return false
	}

	s.mu.Lock()
	if s.closed || s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.seq++
	token := s.seq
	s.latest[path] = token
	s.outstanding++
	s.timers[token] = time.AfterFunc(s.opts.Debounce, func() {
		s.fire(path, token, fn)
	})
	s.mu.Unlock()

	s.emit(progress.Event{Type: progress.EventScanScheduled, Path: path})
	return true
}

// fire runs on the timer goroutine once the debounce window for token closes.
func (s *Scheduler) fire(path string, token uint64, fn ScanFunc) {
	defer s.done()

	s.mu.Lock()
	delete(s.timers, token)
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.latest[path] != token {
		s.mu.Unlock()
		s.emit(progress.Event{Type: progress.EventScanSuperseded, Path: path})
		return
	}

	ln := s.lanes[path]
	if ln == nil {
		ln = &lane{}
		s.lanes[path] = ln
	}
	next := &job{token: token, fn: fn}
	if ln.running {
		replaced := ln.pending != nil
		ln.pending = next
		s.mu.Unlock()
		if replaced {
			s.emit(progress.Event{Type: progress.EventScanSuperseded, Path: path})
		}
		return
	}
	ln.running = true
	s.mu.Unlock()

	s.drain(path, ln, next)
}

// drain executes j and then whatever got queued behind it for the same path.
func (s *Scheduler) drain(path string, ln *lane, j *job) {
	for j != nil {
		s.execute(path, j)

		s.mu.Lock()
		j = ln.pending
		ln.pending = nil
		if j == nil {
			ln.running = false
			if s.lanes[path] == ln {
				delete(s.lanes, path)
			}
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) execute(path string, j *job) {
	if err := s.pool.Acquire(s.ctx, 1); err != nil {
		return
	}
	defer s.pool.Release(1)
	if s.ctx.Err() != nil || !s.tracked(path) {
		return
	}

	started := time.Now().UTC()
	s.emit(progress.Event{Type: progress.EventScanStarted, At: started, Path: path})

	findings, err := runGuarded(s.ctx, j.fn)
	if s.ctx.Err() != nil {
		s.log.Debugw("session closed during scan, dropping result", "path", path)
		return
	}

	completed := time.Now().UTC()
	duration := completed.Sub(started).Milliseconds()
	if err != nil {
		s.log.Warnw("scan failed, treating as no findings", "path", path, "error", err)
		s.emit(progress.Event{
			Type:       progress.EventScanFailed,
			At:         completed,
			Path:       path,
			Error:      err.Error(),
			DurationMS: duration,
		})
		findings = nil
	} else {
		s.log.Debugw("scan finished", "path", path, "findings", len(findings), "duration_ms", duration)
		s.emit(progress.Event{
			Type:         progress.EventScanFinished,
			At:           completed,
			Path:         path,
			FindingCount: len(findings),
			DurationMS:   duration,
		})
	}

	s.mu.Lock()
	latest, ok := s.latest[path]
	if ok && latest == j.token {
		delete(s.latest, path)
	}
	s.mu.Unlock()
	if !ok {
		s.log.Debugw("path forgotten during scan, dropping result", "path", path)
		return
	}
	if err != nil && s.opts.OnFailure != nil {
		s.opts.OnFailure(path)
	}
	s.results.Replace(path, findings)
}

// tracked reports whether path still has a request marker.
func (s *Scheduler) tracked(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.latest[path]
	return ok
}

// RunNow scans path synchronously on the caller's goroutine with the same
// failure handling as scheduled scans. The result is returned, not stored.
func (s *Scheduler) RunNow(ctx context.Context, path string, fn ScanFunc) []model.Finding {
	if fn == nil {
		return nil
	}
	findings, err := runGuarded(ctx, fn)
	if err != nil {
		s.log.Warnw("synchronous scan failed, treating as no findings", "path", path, "error", err)
		if s.opts.OnFailure != nil {
			s.opts.OnFailure(path)
		}
		return nil
	}
	return findings
}

// Forget drops the request marker of path. Timers already armed for it
// become no-ops, and a scan already running for it finishes without
// writing its result.
func (s *Scheduler) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.latest, path)
}

// Wait blocks until no timer is armed and no scan is running.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.outstanding > 0 {
		s.idle.Wait()
	}
}

// Close stops accepting work, disarms pending timers, cancels running scans'
// context and waits for them to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for token, t := range s.timers {
		if t.Stop() {
			s.outstanding--
		}
		delete(s.timers, token)
	}
	if s.outstanding == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()

	s.cancel()
	s.Wait()
}

func (s *Scheduler) done() {
	s.mu.Lock()
	s.outstanding--
	if s.outstanding == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

func (s *Scheduler) emit(e progress.Event) {
	e.SessionID = s.opts.SessionID
	s.opts.Sink.Emit(e)
}

func runGuarded(ctx context.Context, fn ScanFunc) (findings []model.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("scan panicked: %v", r)
		}
	}()
	return fn(ctx)
}
