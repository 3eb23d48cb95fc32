package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"scancoord/internal/progress"
)

func at(sec int) time.Time {
	return time.Date(2026, 1, 1, 12, 0, sec, 0, time.UTC)
}

func TestApplyEventTracksFileLifecycle(t *testing.T) {
	m := newModel(nil, "/work")
	m.applyEvent(progress.Event{Type: progress.EventScanScheduled, SessionID: "s-1", Path: "/work/a.go", At: at(0)})
	m.applyEvent(progress.Event{Type: progress.EventScanSuperseded, Path: "/work/a.go", At: at(0)})
	m.applyEvent(progress.Event{Type: progress.EventScanStarted, Path: "/work/a.go", At: at(1)})
	if m.files["/work/a.go"].Status != statusScanning {
		t.Fatalf("expected scanning, got %+v", m.files["/work/a.go"])
	}
	m.applyEvent(progress.Event{Type: progress.EventScanScheduled, Path: "/work/a.go", At: at(1)})
	if m.files["/work/a.go"].Status != statusScanning {
		t.Fatal("expected a new request to not hide a running scan")
	}
	m.applyEvent(progress.Event{Type: progress.EventScanFinished, Path: "/work/a.go", At: at(2), FindingCount: 3, DurationMS: 900})

	f := m.files["/work/a.go"]
	if f.Status != statusFindings || f.FindingCount != 3 || f.DurationMS != 900 {
		t.Fatalf("unexpected file state: %+v", f)
	}
	if m.sessionID != "s-1" || m.scans != 1 || m.superseded != 1 {
		t.Fatalf("unexpected counters: session=%q scans=%d superseded=%d", m.sessionID, m.scans, m.superseded)
	}

	m.applyEvent(progress.Event{Type: progress.EventFindingsChanged, Path: "/work/a.go", FindingCount: 1})
	if m.totalFindings() != 1 {
		t.Fatalf("expected findings_changed to update the count, got %d", m.totalFindings())
	}
}

func TestApplyEventFailure(t *testing.T) {
	m := newModel(nil, "")
	m.applyEvent(progress.Event{Type: progress.EventScanFailed, Path: "/a.tf", Error: "trivy: exit 2", At: at(3)})
	f := m.files["/a.tf"]
	if f.Status != statusFailed || f.Error != "trivy: exit 2" || m.failures != 1 {
		t.Fatalf("unexpected failure state: %+v", f)
	}
	if len(m.logLines) != 1 || !strings.Contains(m.logLines[0], "failed: trivy: exit 2") {
		t.Fatalf("unexpected log: %v", m.logLines)
	}
}

func TestOrderedFilesPrioritizesScanningThenFailed(t *testing.T) {
	m := uiModel{files: map[string]fileState{
		"z-clean":    {Path: "z-clean", Status: statusClean, UpdatedAt: at(9)},
		"a-scanning": {Path: "a-scanning", Status: statusScanning},
		"m-failed":   {Path: "m-failed", Status: statusFailed},
		"b-findings": {Path: "b-findings", Status: statusFindings},
	}}
	got := m.orderedFiles()
	want := []string{"a-scanning", "m-failed", "b-findings", "z-clean"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestLogLinesAreBounded(t *testing.T) {
	m := newModel(nil, "")
	for i := 0; i < maxLogLines+5; i++ {
		m.applyEvent(progress.Event{Type: progress.EventSuppressionChanged, Message: "changed", At: at(i)})
	}
	if len(m.logLines) != maxLogLines {
		t.Fatalf("expected %d log lines, got %d", maxLogLines, len(m.logLines))
	}
}

func TestUpdateHandlesKeysAndClosedChannel(t *testing.T) {
	m := newModel(nil, "/work")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if next.(uiModel).showDetails {
		t.Fatal("expected d to toggle details off")
	}
	next, _ = next.(uiModel).Update(eventMsg{ok: false})
	if !next.(uiModel).closed {
		t.Fatal("expected closed channel to mark the view closed")
	}
	next, cmd := next.(uiModel).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !next.(uiModel).quitting {
		t.Fatal("expected q to quit")
	}
}

func TestViewRendersRelativePaths(t *testing.T) {
	m := newModel(nil, "/work")
	m.applyEvent(progress.Event{Type: progress.EventScanFinished, SessionID: "abc", Path: "/work/src/main.go", FindingCount: 0, At: at(1)})
	view := m.View()
	for _, want := range []string{"scancoord watch", "Session: abc", "src/main.go", "clean"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q\n%s", want, view)
		}
	}
	if strings.Contains(newModel(nil, "").View(), "src/main.go") {
		t.Error("expected empty model to render no rows")
	}
}

func TestTruncateLeft(t *testing.T) {
	if got := truncateLeft("abcdef", 4); got != "…def" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := truncateLeft("abc", 4); got != "abc" {
		t.Fatalf("expected short strings unchanged, got %q", got)
	}
}

func TestNoColorEnabled(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if !noColorEnabled() {
		t.Fatal("expected NO_COLOR to enable no-color mode")
	}
}
