// Package doctor checks that a workspace is ready to be scanned.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"scancoord/internal/config"
	"scancoord/internal/engine"
	"scancoord/internal/ledger"
)

type Options struct {
	Root string
}

func BuildReport(ctx context.Context, opts Options) Report {
	report := Report{Checks: make([]CheckResult, 0, 8)}
	root, err := resolveRoot(opts.Root)
	if err != nil {
		report.add(CheckResult{ID: CheckRoot, Status: StatusFail, Message: fmt.Sprintf("resolve root: %v", err)})
		return report
	}

	raw, cfgErr := config.Load(root)
	if cfgErr != nil {
		report.add(CheckResult{
			ID:      CheckConfigLoad,
			Status:  StatusFail,
			Message: fmt.Sprintf("failed to load config: %v", cfgErr),
		})
		return report
	}
	meta := map[string]string{
		"local_config": fileState(filepath.Join(root, config.DirName, config.FileName)),
	}
	if home, err := os.UserHomeDir(); err == nil {
		meta["global_config"] = fileState(filepath.Join(home, config.DirName, config.FileName))
	}
	cfg, resolveErr := raw.Resolve(root)
	if resolveErr != nil {
		report.add(CheckResult{
			ID:       CheckConfigLoad,
			Status:   StatusFail,
			Message:  fmt.Sprintf("invalid config: %v", resolveErr),
			Metadata: meta,
		})
		return report
	}
	report.add(CheckResult{ID: CheckConfigLoad, Status: StatusPass, Message: "configuration loaded", Metadata: meta})

	if len(cfg.Engines) == 0 {
		report.add(CheckResult{ID: CheckEnginesConfigured, Status: StatusFail, Message: "no engines configured"})
	} else {
		report.add(CheckResult{
			ID:       CheckEnginesConfigured,
			Status:   StatusPass,
			Message:  fmt.Sprintf("%d engine(s) configured", len(cfg.Engines)),
			Metadata: map[string]string{"engine_workers": fmt.Sprintf("%d", cfg.EngineWorkers)},
		})
	}
	for _, e := range cfg.Engines {
		report.add(engineParserCheck(e))
		report.add(engineBinaryCheck(ctx, e))
	}

	report.add(ledgerCheck(cfg.LedgerDir))
	report.add(ledgerDirWritableCheck(cfg.LedgerDir))
	return report
}

func engineParserCheck(e config.ResolvedEngine) CheckResult {
	id := EngineCheckID(engineLabel(e), EngineParser)
	name := strings.TrimSpace(e.Parser)
	if name == "" {
		name = e.Name
	}
	if _, ok := engine.LookupParser(name); !ok {
		return CheckResult{
			ID:       id,
			Status:   StatusFail,
			Message:  fmt.Sprintf("unknown parser %q", name),
			Metadata: map[string]string{"known": strings.Join(engine.ParserNames(), ",")},
		}
	}
	return CheckResult{ID: id, Status: StatusPass, Message: "parser " + strings.ToLower(name)}
}

func engineBinaryCheck(ctx context.Context, e config.ResolvedEngine) CheckResult {
	id := EngineCheckID(engineLabel(e), EngineBinary)
	bin := strings.TrimSpace(e.Command)
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return CheckResult{
			ID:       id,
			Status:   StatusFail,
			Message:  fmt.Sprintf("command not found: %v", err),
			Metadata: map[string]string{"command": bin},
		}
	}
	if ctx.Err() != nil {
		return CheckResult{ID: id, Status: StatusWarn, Message: "check interrupted"}
	}
	return CheckResult{
		ID:      id,
		Status:  StatusPass,
		Message: "command found",
		Metadata: map[string]string{
			"requested": bin,
			"resolved":  resolved,
		},
	}
}

func ledgerCheck(dir string) CheckResult {
	path := filepath.Join(dir, ledger.FileName)
	entries, err := ledger.Load(path)
	if err != nil {
		return CheckResult{
			ID:       CheckLedgerLoad,
			Status:   StatusWarn,
			Message:  fmt.Sprintf("suppression ledger is unreadable and will be treated as empty: %v", err),
			Metadata: map[string]string{"path": path},
		}
	}
	return CheckResult{
		ID:      CheckLedgerLoad,
		Status:  StatusPass,
		Message: fmt.Sprintf("%d active suppression(s)", len(ledger.Active(entries))),
		Metadata: map[string]string{
			"path":  path,
			"state": fileState(path),
		},
	}
}

func ledgerDirWritableCheck(dir string) CheckResult {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return CheckResult{ID: CheckLedgerWritable, Status: StatusFail, Message: fmt.Sprintf("create ledger dir: %v", err)}
	}
	f, err := os.CreateTemp(dir, ".doctor-write-*")
	if err != nil {
		return CheckResult{ID: CheckLedgerWritable, Status: StatusFail, Message: fmt.Sprintf("write test in ledger dir failed: %v", err)}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return CheckResult{ID: CheckLedgerWritable, Status: StatusPass, Message: "ledger directory is writable", Metadata: map[string]string{"path": dir}}
}

func engineLabel(e config.ResolvedEngine) string {
	if name := strings.ToLower(strings.TrimSpace(e.Name)); name != "" {
		return name
	}
	return filepath.Base(strings.TrimSpace(e.Command))
}

func resolveRoot(raw string) (string, error) {
	if strings.TrimSpace(raw) != "" {
		return filepath.Abs(raw)
	}
	return os.Getwd()
}

func fileState(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "present"
	}
	return "missing"
}
