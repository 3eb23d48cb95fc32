package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scancoord/internal/engine"
	"scancoord/internal/git"
	"scancoord/internal/model"
	"scancoord/internal/progress"
	"scancoord/internal/report"
	"scancoord/internal/session"
	"scancoord/internal/version"
	"scancoord/internal/watch"
)

// oneShotDebounce replaces the editor debounce for CLI scans, which have no
// burst of edits to coalesce.
const oneShotDebounce = 5 * time.Millisecond

type scanFlags struct {
	format  string
	out     string
	dark    bool
	failOn  string
	changed string
	staged  bool
}

func newScanCmd(g *globalFlags) *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan [file]...",
		Short: "Scan files once and print the reconciled problems",
		Long:  "scan runs the configured engines over the named files, or over the files git reports as changed with --changed or --staged.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, g, f, args)
		},
	}
	cmd.Flags().StringVar(&f.format, "format", "text", "Output format: text|json|sarif|markdown")
	cmd.Flags().StringVar(&f.out, "out", "", "Write the report to this file instead of stdout")
	cmd.Flags().BoolVar(&f.dark, "dark", false, "Render icons for a dark theme")
	cmd.Flags().StringVar(&f.failOn, "fail-on", "", "Exit non-zero when a problem at or above this severity remains: critical|high|medium|low")
	cmd.Flags().StringVar(&f.changed, "changed", "", "Scan files changed since this git ref, plus untracked files")
	cmd.Flags().BoolVar(&f.staged, "staged", false, "Scan files staged in the git index")
	return cmd
}

func runScan(cmd *cobra.Command, g *globalFlags, f *scanFlags, args []string) error {
	format := strings.ToLower(strings.TrimSpace(f.format))
	switch format {
	case "text", "json", "sarif", "markdown", "md":
	default:
		return fmt.Errorf("unsupported --format %q (expected text, json, sarif or markdown)", f.format)
	}
	threshold, err := parseFailOn(f.failOn)
	if err != nil {
		return err
	}

	if f.staged && f.changed != "" {
		return errors.New("cannot set both --changed and --staged")
	}
	gitMode := f.staged || f.changed != ""
	if gitMode && len(args) > 0 {
		return errors.New("file arguments cannot be combined with --changed or --staged")
	}
	if !gitMode && len(args) == 0 {
		return errors.New("name at least one file, or use --changed or --staged")
	}

	a, err := g.load()
	if err != nil {
		return err
	}
	defer a.close()
	multi, err := a.engines()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if gitMode {
		args, err = gitTargets(ctx, a.root, f.changed, f.staged)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no changed files to scan")
			return nil
		}
	}

	failures := &failureSink{}
	a.cfg.Debounce = oneShotDebounce
	sess, err := a.openSession(failures, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	rep, err := scanOnce(ctx, sess, multi, args, f.dark)
	if err != nil {
		return err
	}
	rep.Errors = failures.messages()

	if err := writeReport(cmd.OutOrStdout(), format, f.out, rep); err != nil {
		return err
	}
	if len(rep.Errors) > 0 {
		return fmt.Errorf("%d scan(s) failed", len(rep.Errors))
	}
	if threshold != "" {
		if n := countAtOrAbove(rep, threshold); n > 0 {
			return fmt.Errorf("%d problem(s) at or above %s", n, threshold)
		}
	}
	return nil
}

// scanOnce inspects every path, waits for the scans to land and inspects
// again to collect the rendered entries.
func scanOnce(ctx context.Context, sess *session.Session, multi *engine.Multi, paths []string, dark bool) (report.Report, error) {
	type target struct {
		path string
		req  session.Request
	}
	targets := make([]target, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return report.Report{}, fmt.Errorf("resolve %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return report.Report{}, err
		}
		if !info.Mode().IsRegular() {
			return report.Report{}, fmt.Errorf("%s is not a regular file", p)
		}
		req := session.Request{
			Path:   abs,
			Stamps: watch.StampsFor(info),
			Dark:   dark,
			Scan:   engine.ScanFunc(multi, abs, engine.FileContent(abs)),
		}
		targets = append(targets, target{path: abs, req: req})
		sess.Inspect(req)
	}

	done := make(chan struct{})
	go func() {
		sess.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return report.Report{}, ctx.Err()
	}

	files := make([]report.FileResult, 0, len(targets))
	suppressed := 0
	for _, t := range targets {
		entries := sess.Inspect(t.req)
		files = append(files, report.FileResult{Path: t.path, Entries: entries})
		suppressed += countSuppressed(sess, t.path)
	}
	rep := report.New(version.Version, files)
	rep.Suppressed = suppressed
	return rep, nil
}

// gitTargets lists the files git reports as pending under root.
func gitTargets(ctx context.Context, root, ref string, staged bool) ([]string, error) {
	repo, err := git.RepoRoot(ctx, root)
	if err != nil {
		return nil, err
	}
	if staged {
		files, err := git.StagedFiles(ctx, repo)
		if err != nil {
			return nil, err
		}
		return git.AbsFiles(repo, files), nil
	}
	changed, err := git.ChangedFiles(ctx, repo, ref)
	if err != nil {
		return nil, err
	}
	untracked, err := git.UntrackedFiles(ctx, repo)
	if err != nil {
		return nil, err
	}
	return git.AbsFiles(repo, changed, untracked), nil
}

func countSuppressed(sess *session.Session, path string) int {
	findings, _ := sess.Findings(path)
	led := sess.Ledger()
	n := 0
	for _, f := range findings {
		if led.IsActiveSuppression(f, path, f.Line()) {
			n++
		}
	}
	return n
}

func writeReport(stdout io.Writer, format, out string, rep report.Report) error {
	if out = strings.TrimSpace(out); out != "" {
		switch format {
		case "json":
			return report.WriteJSON(out, rep)
		case "sarif":
			return report.WriteSARIF(out, rep)
		case "markdown", "md":
			return report.WriteMarkdown(out, rep)
		default:
			return errors.New("--out requires --format json, sarif or markdown")
		}
	}

	switch format {
	case "json":
		return report.EncodeJSON(stdout, rep)
	case "sarif":
		return report.EncodeSARIF(stdout, rep)
	case "markdown", "md":
		_, err := io.WriteString(stdout, report.RenderMarkdown(rep))
		return err
	default:
		writeText(stdout, rep, styledOutput(stdout))
		return nil
	}
}

func parseFailOn(raw string) (model.Severity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	sev := model.ParseSeverity(raw)
	if !sev.Actionable() {
		return "", fmt.Errorf("invalid --fail-on %q", raw)
	}
	return sev, nil
}

func countAtOrAbove(rep report.Report, threshold model.Severity) int {
	n := 0
	for _, f := range rep.Files {
		for _, e := range f.Entries {
			if e.Severity.Rank() >= threshold.Rank() {
				n++
			}
		}
	}
	return n
}

// failureSink records scan_failed events so a one-shot run can report them.
type failureSink struct {
	mu   sync.Mutex
	errs []string
}

func (s *failureSink) Emit(e progress.Event) {
	if e.Type != progress.EventScanFailed {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, fmt.Sprintf("%s: %s", e.Path, e.Error))
}

func (s *failureSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errs...)
}
