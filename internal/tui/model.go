package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scancoord/internal/progress"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

const (
	statusPending  = "pending"
	statusScanning = "scanning"
	statusClean    = "clean"
	statusFindings = "findings"
	statusFailed   = "failed"

	maxLogLines = 12
	maxFileRows = 20
)

type fileState struct {
	Path         string
	Status       string
	FindingCount int
	DurationMS   int64
	StartedAt    time.Time
	UpdatedAt    time.Time
	Error        string
}

type eventMsg struct {
	event progress.Event
	ok    bool
}

type uiModel struct {
	events <-chan progress.Event
	root   string

	sessionID   string
	closed      bool
	showDetails bool
	quitting    bool

	files      map[string]fileState
	scans      int
	failures   int
	superseded int

	logLines []string
	tick     int
}

func newModel(events <-chan progress.Event, root string) uiModel {
	return uiModel{
		events:      events,
		root:        root,
		files:       make(map[string]fileState),
		showDetails: true,
		logLines:    make([]string, 0, maxLogLines),
	}
}

func waitForEvent(ch <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		return eventMsg{event: ev, ok: ok}
	}
}

type tickMsg time.Time

func nextTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), nextTick())
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "d":
			m.showDetails = !m.showDetails
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case eventMsg:
		if !msg.ok {
			m.closed = true
			return m, nil
		}
		m.applyEvent(msg.event)
		return m, waitForEvent(m.events)
	case tickMsg:
		m.tick++
		return m, nextTick()
	default:
		return m, nil
	}
}

func (m uiModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	b.WriteString(titleStyle.Render("scancoord watch"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Root: %s\n", valueOrDash(m.root)))
	b.WriteString(fmt.Sprintf("Session: %s\n", valueOrDash(m.sessionID)))
	status := "watching " + m.runningFrame()
	if m.closed {
		status = "closed"
	}
	b.WriteString(fmt.Sprintf("Status: %s\n", runningStyle.Render(status)))
	b.WriteString(fmt.Sprintf("Scans: %d  Failed: %d  Coalesced: %d  Findings: %d\n", m.scans, m.failures, m.superseded, m.totalFindings()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-40s %-11s %-9s %-10s", "File", "Status", "Findings", "Duration")))
	b.WriteString("\n")
	rows := m.orderedFiles()
	if len(rows) == 0 {
		b.WriteString(idleStyle.Render("No files inspected yet."))
		b.WriteString("\n")
	}
	for idx, path := range rows {
		if idx == maxFileRows {
			b.WriteString(idleStyle.Render(fmt.Sprintf("... %d more", len(rows)-maxFileRows)))
			b.WriteString("\n")
			break
		}
		f := m.files[path]
		display := f.Status
		if f.Status == statusScanning {
			display = "scanning " + m.frame(idx)
		}
		line := fmt.Sprintf("%-40s %-11s %-9d %-10s", truncateLeft(m.relative(path), 40), display, f.FindingCount, durationString(m.durationMS(f)))
		b.WriteString(styleStatus(f.Status).Render(line))
		b.WriteString("\n")
	}

	if m.showDetails {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Recent Events"))
		b.WriteString("\n")
		if len(m.logLines) == 0 {
			b.WriteString(idleStyle.Render("No events yet."))
			b.WriteString("\n")
		} else {
			for _, line := range m.logLines {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("d toggle details • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *uiModel) applyEvent(e progress.Event) {
	if e.SessionID != "" {
		m.sessionID = e.SessionID
	}
	switch e.Type {
	case progress.EventScanScheduled:
		f := m.ensureFile(e.Path)
		if f.Status != statusScanning {
			f.Status = statusPending
		}
		m.files[e.Path] = f
	case progress.EventScanSuperseded:
		m.superseded++
	case progress.EventScanStarted:
		f := m.ensureFile(e.Path)
		f.Status = statusScanning
		f.StartedAt = eventTime(e)
		f.Error = ""
		m.files[e.Path] = f
		m.appendEventLine(e, fmt.Sprintf("scanning %s", m.relative(e.Path)))
	case progress.EventScanFinished:
		f := m.ensureFile(e.Path)
		f.FindingCount = e.FindingCount
		f.DurationMS = e.DurationMS
		f.Status = statusClean
		if e.FindingCount > 0 {
			f.Status = statusFindings
		}
		f.UpdatedAt = eventTime(e)
		m.files[e.Path] = f
		m.scans++
		m.appendEventLine(e, fmt.Sprintf("%s: %d findings in %s", m.relative(e.Path), e.FindingCount, durationString(e.DurationMS)))
	case progress.EventScanFailed:
		f := m.ensureFile(e.Path)
		f.Status = statusFailed
		f.FindingCount = 0
		f.DurationMS = e.DurationMS
		f.Error = strings.TrimSpace(e.Error)
		f.UpdatedAt = eventTime(e)
		m.files[e.Path] = f
		m.scans++
		m.failures++
		m.appendEventLine(e, fmt.Sprintf("%s failed: %s", m.relative(e.Path), firstNonEmpty(e.Error, "unknown error")))
	case progress.EventFindingsChanged:
		if f, ok := m.files[e.Path]; ok {
			f.FindingCount = e.FindingCount
			m.files[e.Path] = f
		}
	case progress.EventSuppressionChanged:
		m.appendEventLine(e, firstNonEmpty(e.Message, "suppressions changed"))
	case progress.EventSessionClosed:
		m.closed = true
		m.appendEventLine(e, "session closed")
	}
}

func (m *uiModel) ensureFile(path string) fileState {
	f, ok := m.files[path]
	if !ok {
		f = fileState{Path: path, Status: statusPending}
	}
	return f
}

// orderedFiles lists scanning files first, then failures, then the most
// recently updated.
func (m uiModel) orderedFiles() []string {
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := m.files[out[i]], m.files[out[j]]
		if ra, rb := statusRank(a.Status), statusRank(b.Status); ra != rb {
			return ra < rb
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.Path < b.Path
	})
	return out
}

func statusRank(s string) int {
	switch s {
	case statusScanning:
		return 0
	case statusFailed:
		return 1
	case statusFindings:
		return 2
	case statusPending:
		return 3
	default:
		return 4
	}
}

func (m uiModel) totalFindings() int {
	n := 0
	for _, f := range m.files {
		n += f.FindingCount
	}
	return n
}

func (m uiModel) relative(path string) string {
	if m.root == "" {
		return path
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (m uiModel) durationMS(f fileState) int64 {
	if f.Status == statusScanning && !f.StartedAt.IsZero() {
		return time.Since(f.StartedAt).Milliseconds()
	}
	return f.DurationMS
}

func (m *uiModel) appendEventLine(e progress.Event, text string) {
	line := fmt.Sprintf("[%s] %s", eventTime(e).Format("15:04:05"), strings.TrimSpace(text))
	m.logLines = append(m.logLines, line)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
}

func eventTime(e progress.Event) time.Time {
	if e.At.IsZero() {
		return time.Now().UTC()
	}
	return e.At
}

func durationString(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

func truncateLeft(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func valueOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case statusClean:
		return okStyle
	case statusFindings:
		return warnStyle
	case statusFailed:
		return errorStyle
	case statusScanning:
		return runningStyle
	default:
		return idleStyle
	}
}

var frames = []string{"-", "\\", "|", "/"}

func (m uiModel) runningFrame() string {
	return frames[m.tick%len(frames)]
}

func (m uiModel) frame(idx int) string {
	return frames[(m.tick+idx)%len(frames)]
}

func noColorEnabled() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}
