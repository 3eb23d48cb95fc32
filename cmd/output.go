package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"scancoord/internal/model"
	"scancoord/internal/redact"
	"scancoord/internal/report"
)

var (
	pathStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	summaryStyle = lipgloss.NewStyle().Bold(true)

	severityStyles = map[model.Severity]lipgloss.Style{
		model.SeverityMalicious: lipgloss.NewStyle().Foreground(lipgloss.Color("201")).Bold(true),
		model.SeverityCritical:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		model.SeverityHigh:      lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		model.SeverityMedium:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		model.SeverityLow:       lipgloss.NewStyle().Foreground(lipgloss.Color("111")),
	}
)

func interactiveTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stderr.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
}

// styledOutput reports whether w is a colour-capable terminal.
func styledOutput(w io.Writer) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func severityLabel(sev model.Severity, styled bool) string {
	label := strings.ToUpper(sev.String())
	if !styled {
		return label
	}
	if st, ok := severityStyles[sev]; ok {
		return st.Render(label)
	}
	return label
}

// writeText prints one block per file with a line per render entry.
func writeText(w io.Writer, r report.Report, styled bool) {
	style := func(st lipgloss.Style, s string) string {
		if !styled {
			return s
		}
		return st.Render(s)
	}

	for _, file := range r.Files {
		fmt.Fprintln(w, style(pathStyle, file.Path))
		if len(file.Entries) == 0 {
			fmt.Fprintln(w, style(dimStyle, "  no problems"))
			continue
		}
		for _, e := range file.Entries {
			marker := " "
			if e.Representative {
				marker = "*"
			}
			fmt.Fprintf(w, "  %s %4d  %-9s %s", marker, e.Line, severityLabel(e.Severity, styled), redact.Text(e.Finding.Title))
			if id := strings.TrimSpace(e.Finding.ID); id != "" {
				fmt.Fprint(w, style(dimStyle, "  ["+id+"]"))
			}
			fmt.Fprintln(w)
		}
	}
	for _, msg := range r.Errors {
		fmt.Fprintf(w, "error: %s\n", msg)
	}

	line := fmt.Sprintf("%d problem(s) in %d file(s)", r.Total(), len(r.Files))
	if r.Suppressed > 0 {
		line += fmt.Sprintf(", %d suppressed", r.Suppressed)
	}
	fmt.Fprintln(w, style(summaryStyle, line))
}
