package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"scancoord/internal/doctor"
)

func newDoctorCmd(g *globalFlags) *cobra.Command {
	var (
		asJSON bool
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check config, engines and the suppression ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := doctor.BuildReport(cmd.Context(), doctor.Options{Root: g.root})
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(r); err != nil {
					return err
				}
			} else {
				for _, chk := range r.Checks {
					fmt.Fprintf(out, "[%-7s] %-28s %s\n", strings.ToUpper(string(chk.Status)), chk.ID, chk.Message)
					keys := make([]string, 0, len(chk.Metadata))
					for k := range chk.Metadata {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					for _, k := range keys {
						fmt.Fprintf(out, "            %s=%s\n", k, chk.Metadata[k])
					}
				}
				fmt.Fprintf(out, "checks=%d pass=%d warning=%d fail=%d\n", r.Summary.Total(), r.Summary.Pass, r.Summary.Warning, r.Summary.Fail)
			}
			if r.Failed(strict) {
				return errors.New("doctor found problems")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as failures")
	return cmd
}
