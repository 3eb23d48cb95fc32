package doctor

import "fmt"

type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warning"
	StatusFail Status = "fail"
)

// Check IDs. Engine checks are keyed per engine, see EngineCheckID.
const (
	CheckRoot              = "workspace.root"
	CheckConfigLoad        = "config.load"
	CheckEnginesConfigured = "engines.configured"
	CheckLedgerLoad        = "ledger.load"
	CheckLedgerWritable    = "workspace.permissions"
)

// Aspects of a configured engine that get their own check.
const (
	EngineParser = "parser"
	EngineBinary = "binary"
)

// EngineCheckID returns the ID of the aspect check for one engine, for
// example "engine.semgrep.binary".
func EngineCheckID(engine, aspect string) string {
	return "engine." + engine + "." + aspect
}

type CheckResult struct {
	ID       string            `json:"id"`
	Status   Status            `json:"status"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Summary struct {
	Pass    int `json:"pass"`
	Warning int `json:"warning"`
	Fail    int `json:"fail"`
}

func (s Summary) Total() int { return s.Pass + s.Warning + s.Fail }

// Report is the outcome of one doctor run. Warnings and Errors repeat the
// non-passing checks as "id: message" lines.
type Report struct {
	Checks   []CheckResult `json:"checks"`
	Warnings []string      `json:"warnings,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
	Summary  Summary       `json:"summary"`
}

func (r *Report) add(res CheckResult) {
	r.Checks = append(r.Checks, res)
	switch res.Status {
	case StatusFail:
		r.Summary.Fail++
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", res.ID, res.Message))
	case StatusWarn:
		r.Summary.Warning++
		r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %s", res.ID, res.Message))
	default:
		r.Summary.Pass++
	}
}

// Check returns the result recorded under id.
func (r Report) Check(id string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.ID == id {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Failed reports whether the run should exit non-zero. Under strict,
// warnings count as failures too.
func (r Report) Failed(strict bool) bool {
	if r.Summary.Fail > 0 {
		return true
	}
	return strict && r.Summary.Warning > 0
}
