package model

import "strings"

type Severity string

const (
	SeverityMalicious Severity = "malicious"
	SeverityCritical  Severity = "critical"
	SeverityHigh      Severity = "high"
	SeverityMedium    Severity = "medium"
	SeverityLow       Severity = "low"
	SeverityOK        Severity = "ok"
	SeverityUnknown   Severity = "unknown"
)

// Rank orders severities; a higher rank wins a line's summary icon.
func (s Severity) Rank() int {
	switch s {
	case SeverityMalicious:
		return 7
	case SeverityCritical:
		return 6
	case SeverityHigh:
		return 5
	case SeverityMedium:
		return 4
	case SeverityLow:
		return 3
	case SeverityOK:
		return 2
	default:
		return 1
	}
}

// Actionable reports whether findings of this severity are shown at all.
func (s Severity) Actionable() bool {
	return s.Rank() > SeverityOK.Rank()
}

func (s Severity) String() string {
	if s == "" {
		return string(SeverityUnknown)
	}
	return string(s)
}

// ParseSeverity normalizes the spellings used by the supported engines.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "malicious":
		return SeverityMalicious
	case "critical":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "moderate", "warning":
		return SeverityMedium
	case "low", "info", "note":
		return SeverityLow
	case "ok", "none", "pass":
		return SeverityOK
	default:
		return SeverityUnknown
	}
}
