package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scancoord/internal/ledger"
	"scancoord/internal/model"
	"scancoord/internal/redact"
)

func newSuppressionsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suppressions",
		Short: "Inspect and revive suppressed findings",
	}
	cmd.AddCommand(newSuppressionsListCmd(g), newSuppressionsReviveCmd(g))
	return cmd
}

type listedEntry struct {
	Index    int                    `json:"index"`
	Category model.Category         `json:"category"`
	Key      string                 `json:"key"`
	Title    string                 `json:"title"`
	Severity model.Severity         `json:"severity"`
	Files    []ledger.FileReference `json:"files"`
}

func newSuppressionsListCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active suppressions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			defer a.close()
			led, err := ledger.Open(a.cfg.LedgerDir, a.log)
			if err != nil {
				return err
			}

			active := led.ListActive()
			listed := make([]listedEntry, 0, len(active))
			for i, e := range active {
				listed = append(listed, listedEntry{
					Index:    i + 1,
					Category: e.Category(),
					Key:      e.Key.String(),
					Title:    e.Title,
					Severity: e.Severity,
					Files:    e.ActiveFiles(),
				})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(listed)
			}
			if len(listed) == 0 {
				fmt.Fprintln(out, "no active suppressions")
				return nil
			}
			styled := styledOutput(out)
			for _, e := range listed {
				fmt.Fprintf(out, "%3d  %-9s %-10s %s\n", e.Index, severityLabel(e.Severity, styled), e.Category, redact.Text(e.Title))
				for _, ref := range e.Files {
					fmt.Fprintf(out, "       %s:%d\n", ref.Path, ref.Line)
				}
			}
			if at, ok := statTime(led.Path()); ok {
				fmt.Fprintf(out, "ledger %s (updated %s)\n", led.Path(), at.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newSuppressionsReviveCmd(g *globalFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "revive <index>...",
		Short: "Revive suppressions by their index in 'suppressions list'",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("name at least one index or pass --all")
			}
			a, err := g.load()
			if err != nil {
				return err
			}
			defer a.close()
			led, err := ledger.Open(a.cfg.LedgerDir, a.log)
			if err != nil {
				return err
			}

			active := led.ListActive()
			var picked []ledger.Entry
			if all {
				picked = active
			} else {
				for _, raw := range args {
					idx, err := strconv.Atoi(strings.TrimSpace(raw))
					if err != nil || idx < 1 || idx > len(active) {
						return fmt.Errorf("invalid index %q (have %d active suppressions)", raw, len(active))
					}
					picked = append(picked, active[idx-1])
				}
			}

			results := led.ReviveMany(picked)
			out := cmd.OutOrStdout()
			revived := 0
			for i, ok := range results {
				if ok {
					revived++
					fmt.Fprintf(out, "revived %s\n", picked[i].Title)
				}
			}
			fmt.Fprintf(out, "%d suppression(s) revived\n", revived)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Revive every active suppression")
	return cmd
}

func statTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
