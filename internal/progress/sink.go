package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) {
	f(e)
}

type NoopSink struct{}

func (NoopSink) Emit(Event) {}

// Multi fans an event out to every non-nil sink in order.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

type ChannelSink struct {
	ch chan<- Event
}

func NewChannelSink(ch chan<- Event) *ChannelSink {
	return &ChannelSink{ch: ch}
}

func (s *ChannelSink) Emit(e Event) {
	if s == nil || s.ch == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case s.ch <- e:
	default:
		// Drop on backpressure so a slow viewer cannot stall scans.
	}
}

type PlainSink struct {
	w  io.Writer
	mu sync.Mutex
}

func NewPlainSink(w io.Writer) *PlainSink {
	return &PlainSink{w: w}
}

func (s *PlainSink) Emit(e Event) {
	if s == nil || s.w == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	line := formatPlain(e)
	if line == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, line)
}

func formatPlain(e Event) string {
	ts := e.At.Format("15:04:05")
	switch e.Type {
	case EventScanStarted:
		return fmt.Sprintf("[%s] scan %s started", ts, e.Path)
	case EventScanFinished:
		return fmt.Sprintf("[%s] scan %s finished findings=%d duration=%dms", ts, e.Path, e.FindingCount, e.DurationMS)
	case EventScanFailed:
		line := fmt.Sprintf("[%s] scan %s failed duration=%dms", ts, e.Path, e.DurationMS)
		if msg := strings.TrimSpace(e.Error); msg != "" {
			line += " error=" + msg
		}
		return line
	case EventFindingsChanged:
		return fmt.Sprintf("[%s] %s: %d problem(s)", ts, e.Path, e.FindingCount)
	case EventSuppressionChanged:
		msg := strings.TrimSpace(e.Message)
		if msg == "" {
			msg = "updated"
		}
		return fmt.Sprintf("[%s] suppressions %s", ts, msg)
	case EventSessionClosed:
		return fmt.Sprintf("[%s] session %s closed", ts, e.SessionID)
	default:
		// scheduled/superseded are too chatty for plain output.
		return ""
	}
}
