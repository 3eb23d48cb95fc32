package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"scancoord/internal/model"
	"scancoord/internal/redact"
)

type suppressFlags struct {
	category string
}

func newSuppressCmd(g *globalFlags) *cobra.Command {
	f := &suppressFlags{}
	cmd := &cobra.Command{
		Use:   "suppress <file> [finding-id]...",
		Short: "Scan a file and add findings to the suppression ledger",
		Long:  "suppress scans <file> and ignores the named findings (by id or rule id) for that file. With --category every finding of that category in the file is ignored.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuppress(cmd, g, f, args[0], args[1:])
		},
	}
	cmd.Flags().StringVar(&f.category, "category", "", "Suppress every finding of this category: dependency|secret|container|iac|code")
	return cmd
}

func runSuppress(cmd *cobra.Command, g *globalFlags, f *suppressFlags, file string, ids []string) error {
	category := model.Category("")
	if raw := strings.TrimSpace(f.category); raw != "" {
		c, ok := model.ParseCategory(raw)
		if !ok {
			return fmt.Errorf("unknown --category %q", raw)
		}
		category = c
	}
	if category == "" && len(ids) == 0 {
		return errors.New("name at least one finding id or set --category")
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

	a.cfg.Debounce = oneShotDebounce
	failures := &failureSink{}
	sess, err := a.openSession(failures, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := scanOnce(cmd.Context(), sess, multi, []string{file}, false); err != nil {
		return err
	}
	if msgs := failures.messages(); len(msgs) > 0 {
		return fmt.Errorf("scan failed: %s", strings.Join(msgs, "; "))
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	findings, _ := sess.Findings(abs)
	out := cmd.OutOrStdout()

	if category != "" {
		n, err := sess.SuppressAllOfCategory(category, nil, abs)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "suppressed %d %s finding(s) in %s\n", n, category, file)
	}

	var missing []string
	for _, id := range ids {
		matched := matchFindings(findings, id)
		if len(matched) == 0 {
			missing = append(missing, id)
			continue
		}
		for _, fd := range matched {
			if err := sess.Suppress(fd, abs, fd.Line()); err != nil {
				return err
			}
			fmt.Fprintf(out, "suppressed %s (line %d) %s\n", fd.ID, fd.Line(), redact.Text(fd.Title))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no finding matches %s in %s", strings.Join(missing, ", "), file)
	}
	return nil
}

// matchFindings returns the findings whose id or rule id equals id.
func matchFindings(findings []model.Finding, id string) []model.Finding {
	id = strings.TrimSpace(id)
	var out []model.Finding
	for _, f := range findings {
		if strings.EqualFold(f.ID, id) || strings.EqualFold(f.RuleID, id) {
			out = append(out, f)
		}
	}
	return out
}
