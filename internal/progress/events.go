package progress

import "time"

type EventType string

const (
	EventScanScheduled      EventType = "scan_scheduled"
	EventScanSuperseded     EventType = "scan_superseded"
	EventScanStarted        EventType = "scan_started"
	EventScanFinished       EventType = "scan_finished"
	EventScanFailed         EventType = "scan_failed"
	EventFindingsChanged    EventType = "findings_changed"
	EventSuppressionChanged EventType = "suppression_changed"
	EventSessionClosed      EventType = "session_closed"
)

type Event struct {
	Type         EventType `json:"type"`
	At           time.Time `json:"at"`
	SessionID    string    `json:"session_id,omitempty"`
	Path         string    `json:"path,omitempty"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	FindingCount int       `json:"finding_count,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
}
