package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"scancoord/internal/diff"
	"scancoord/internal/redact"
	"scancoord/internal/report"
)

func newDiffCmd() *cobra.Command {
	var (
		asJSON bool
		failOn string
	)
	cmd := &cobra.Command{
		Use:   "diff <baseline.json> <current.json>",
		Short: "Compare two JSON scan reports",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, err := parseFailOn(failOn)
			if err != nil {
				return err
			}
			baseline, err := report.ReadJSON(args[0])
			if err != nil {
				return err
			}
			current, err := report.ReadJSON(args[1])
			if err != nil {
				return err
			}

			d := diff.Compare(baseline, current)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(d); err != nil {
					return err
				}
			} else {
				writeDiff(out, d)
			}

			if threshold != "" {
				if n := d.CountAtOrAbove(threshold); n > 0 {
					return fmt.Errorf("%d new problem(s) at or above %s", n, threshold)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().StringVar(&failOn, "fail-on", "", "Exit non-zero when a new problem at or above this severity appears")
	return cmd
}

func writeDiff(w io.Writer, d diff.DiffReport) {
	section := func(title string, items []diff.Item) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(w, "%s:\n", title)
		for _, it := range items {
			fmt.Fprintf(w, "  %-9s %s:%d  %s\n", strings.ToUpper(it.Finding.Severity.String()), it.Path, it.Line, redact.Text(it.Finding.Title))
		}
	}
	section("New", d.New)
	section("Fixed", d.Fixed)
	fmt.Fprintf(w, "new=%d fixed=%d unchanged=%d\n", d.Summary.NewCount, d.Summary.FixedCount, d.Summary.UnchangedCount)
}
