package reconcile

import (
	"testing"

	"scancoord/internal/model"
)

func finding(id string, sev model.Severity, line int) model.Finding {
	return model.Finding{
		ID:        id,
		Category:  model.CategoryCode,
		Title:     id,
		RuleID:    id,
		Severity:  sev,
		Locations: []model.Location{{Line: line}},
	}
}

type suppressIDs map[string]string

func (s suppressIDs) IsActiveSuppression(f model.Finding, path string, _ int) bool {
	return s[f.ID] == path
}

func TestReconcileDropsNonActionable(t *testing.T) {
	got := Reconcile("/a.go", []model.Finding{
		finding("ok", model.SeverityOK, 1),
		finding("unknown", model.SeverityUnknown, 2),
		finding("empty", "", 3),
		finding("low", model.SeverityLow, 4),
	}, nil, false)
	if len(got) != 1 || got[0].Finding.ID != "low" {
		t.Fatalf("expected only the low finding to survive, got %+v", got)
	}
}

func TestReconcileKeepsEveryActionableFinding(t *testing.T) {
	sevs := []model.Severity{
		model.SeverityMalicious,
		model.SeverityCritical,
		model.SeverityHigh,
		model.SeverityMedium,
		model.SeverityLow,
	}
	var in []model.Finding
	for i, s := range sevs {
		in = append(in, finding(string(s), s, i%2+1))
	}
	got := Reconcile("/a.go", in, None, false)
	if len(got) != len(in) {
		t.Fatalf("expected %d entries, got %d", len(in), len(got))
	}
	for i := range in {
		if got[i].Finding.ID != in[i].ID {
			t.Fatalf("expected input order preserved at %d: want %s got %s", i, in[i].ID, got[i].Finding.ID)
		}
	}
}

func TestReconcileSuppressionIsPerFile(t *testing.T) {
	in := []model.Finding{finding("a", model.SeverityHigh, 1), finding("b", model.SeverityHigh, 2)}
	supp := suppressIDs{"a": "/a.go"}

	got := Reconcile("/a.go", in, supp, false)
	if len(got) != 1 || got[0].Finding.ID != "b" {
		t.Fatalf("expected a to be suppressed in /a.go, got %+v", got)
	}

	got = Reconcile("/b.go", in, supp, false)
	if len(got) != 2 {
		t.Fatalf("expected suppression in another file to not apply, got %d entries", len(got))
	}
}

func TestReconcileCollapsesLineToHighestSeverity(t *testing.T) {
	got := Reconcile("/a.go", []model.Finding{
		finding("low", model.SeverityLow, 10),
		finding("high", model.SeverityHigh, 10),
	}, None, false)

	if len(got) != 2 {
		t.Fatalf("expected both findings as individual entries, got %d", len(got))
	}
	for _, e := range got {
		if e.LineSeverity != model.SeverityHigh {
			t.Fatalf("expected line severity high for %s, got %s", e.Finding.ID, e.LineSeverity)
		}
	}
	if got[0].Severity != model.SeverityLow || got[1].Severity != model.SeverityHigh {
		t.Fatal("expected entries to keep their own severity")
	}
	if got[0].Representative || !got[1].Representative {
		t.Fatalf("expected the high finding to own the line, got %+v", got)
	}
	lines := LineSeverities(got)
	if len(lines) != 1 || lines[10] != model.SeverityHigh {
		t.Fatalf("expected a single high indicator for line 10, got %v", lines)
	}
}

func TestReconcileTieKeepsFirstSeen(t *testing.T) {
	got := Reconcile("/a.go", []model.Finding{
		finding("first", model.SeverityMedium, 3),
		finding("second", model.SeverityMedium, 3),
	}, None, false)
	if !got[0].Representative || got[1].Representative {
		t.Fatalf("expected first-seen finding to represent the line, got %+v", got)
	}
}

func TestReconcilePrecedenceAcrossAllLevels(t *testing.T) {
	got := Reconcile("/a.go", []model.Finding{
		finding("critical", model.SeverityCritical, 1),
		finding("malicious", model.SeverityMalicious, 1),
		finding("medium", model.SeverityMedium, 1),
		finding("other-line", model.SeverityLow, 2),
	}, None, true)

	lines := LineSeverities(got)
	if lines[1] != model.SeverityMalicious {
		t.Fatalf("expected malicious to win line 1, got %s", lines[1])
	}
	if lines[2] != model.SeverityLow {
		t.Fatalf("expected line 2 to keep low, got %s", lines[2])
	}
	if got[0].Icon != "icons/malicious_dark.svg" {
		t.Fatalf("expected dark icon of the line severity, got %q", got[0].Icon)
	}
}

func TestReconcileMissingLocationMapsToFirstLine(t *testing.T) {
	f := finding("noloc", model.SeverityHigh, 0)
	f.Locations = nil
	got := Reconcile("/a.go", []model.Finding{f}, None, false)
	if len(got) != 1 || got[0].Line != 1 {
		t.Fatalf("expected finding without location on line 1, got %+v", got)
	}
}

func TestIconDependsOnTheme(t *testing.T) {
	if Icon(model.SeverityHigh, false) == Icon(model.SeverityHigh, true) {
		t.Fatal("expected theme to change icon reference")
	}
}
