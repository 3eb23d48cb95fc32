package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestChannelSinkEmitAddsTimestampAndForwardsEvent(t *testing.T) {
	ch := make(chan Event, 1)
	sink := NewChannelSink(ch)

	sink.Emit(Event{
		Type: EventScanStarted,
		Path: "/src/a.go",
	})

	select {
	case got := <-ch:
		if got.Type != EventScanStarted {
			t.Fatalf("expected type %q, got %q", EventScanStarted, got.Type)
		}
		if got.Path != "/src/a.go" {
			t.Fatalf("expected path /src/a.go, got %q", got.Path)
		}
		if got.At.IsZero() {
			t.Fatal("expected timestamp to be auto-populated")
		}
		if got.At.Location() != time.UTC {
			t.Fatalf("expected UTC timestamp location, got %q", got.At.Location())
		}
	default:
		t.Fatal("expected event to be sent to channel")
	}
}

func TestChannelSinkEmitDropsOnBackpressureWithoutBlocking(t *testing.T) {
	const ciTimeout = 5 * time.Second

	ch := make(chan Event, 1)
	ch <- Event{Type: EventScanStarted, Path: "first"}
	sink := NewChannelSink(ch)

	done := make(chan struct{})
	go func() {
		sink.Emit(Event{Type: EventScanStarted, Path: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ciTimeout):
		t.Fatal("expected Emit to return without blocking on full channel")
	}

	got := <-ch
	if got.Path != "first" {
		t.Fatalf("expected original buffered event to remain, got %q", got.Path)
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected dropped event, but received %+v", extra)
	default:
	}
}

func TestNilChannelSinkIsSafe(t *testing.T) {
	var s *ChannelSink
	s.Emit(Event{Type: EventScanStarted})
	NewChannelSink(nil).Emit(Event{Type: EventScanStarted})
}

func TestMultiFansOutAndSkipsNil(t *testing.T) {
	var got []EventType
	m := Multi{nil, SinkFunc(func(e Event) { got = append(got, e.Type) }), NoopSink{}}
	m.Emit(Event{Type: EventFindingsChanged})
	if len(got) != 1 || got[0] != EventFindingsChanged {
		t.Fatalf("unexpected fan-out: %v", got)
	}
}

func TestPlainSinkEmitFormatsAndSkipsChattyEvents(t *testing.T) {
	var out bytes.Buffer
	sink := NewPlainSink(&out)

	at := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	sink.Emit(Event{Type: EventScanScheduled, Path: "/a.go"})
	sink.Emit(Event{
		Type:       EventScanFailed,
		At:         at,
		Path:       "/a.go",
		DurationMS: 17,
		Error:      " engine exited 2 ",
	})
	sink.Emit(Event{Type: EventFindingsChanged, At: at, Path: "/a.go", FindingCount: 3})
	sink.Emit(Event{Type: EventType("unknown")})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two formatted lines, got %d: %q", len(lines), out.String())
	}

	const wantFirst = "[03:04:05] scan /a.go failed duration=17ms error=engine exited 2"
	if lines[0] != wantFirst {
		t.Fatalf("unexpected scan-failed format:\nwant: %q\n got: %q", wantFirst, lines[0])
	}
	if lines[1] != "[03:04:05] /a.go: 3 problem(s)" {
		t.Fatalf("unexpected findings-changed format: %q", lines[1])
	}
}
