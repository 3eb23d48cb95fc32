package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"scancoord/internal/model"
	"scancoord/internal/redact"
	"scancoord/internal/safefile"
)

func EncodeJSON(w io.Writer, report Report) error {
	report = redactReport(report)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report json: %w", err)
	}
	return nil
}

func WriteJSON(path string, report Report) error {
	var b bytes.Buffer
	if err := EncodeJSON(&b, report); err != nil {
		return err
	}
	if err := safefile.WriteFileAtomic(path, b.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write report json: %w", err)
	}
	return nil
}

// ReadJSON loads a report written by WriteJSON.
func ReadJSON(path string) (Report, error) {
	data, err := safefile.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read report %s: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("parse report %s: %w", path, err)
	}
	return r, nil
}

func WriteMarkdown(path string, report Report) error {
	content := RenderMarkdown(report)
	if err := safefile.WriteFileAtomic(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write report markdown: %w", err)
	}
	return nil
}

func RenderMarkdown(report Report) string {
	report = redactReport(report)
	var b bytes.Buffer

	b.WriteString("# Scan Results\n\n")
	b.WriteString(fmt.Sprintf("- Files: `%d`\n", len(report.Files)))
	b.WriteString(fmt.Sprintf("- Total findings: **%d**\n", report.Total()))
	b.WriteString(fmt.Sprintf("- Severity: malicious=%d, critical=%d, high=%d, medium=%d, low=%d\n",
		report.CountsBySeverity["malicious"],
		report.CountsBySeverity["critical"],
		report.CountsBySeverity["high"],
		report.CountsBySeverity["medium"],
		report.CountsBySeverity["low"],
	))
	if report.Suppressed > 0 {
		b.WriteString(fmt.Sprintf("- Suppressed: `%d`\n", report.Suppressed))
	}
	b.WriteString("\n")

	if len(report.Errors) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, e := range report.Errors {
			b.WriteString("- " + sanitizeInline(e) + "\n")
		}
		b.WriteString("\n")
	}

	if report.Total() == 0 {
		b.WriteString("## Findings\n\nNo findings.\n")
		return b.String()
	}

	for _, f := range report.Files {
		if len(f.Entries) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("## %s\n\n", sanitizeInline(f.Path)))
		entries := model.CloneEntries(f.Entries)
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Line != entries[j].Line {
				return entries[i].Line < entries[j].Line
			}
			return entries[i].Severity.Rank() > entries[j].Severity.Rank()
		})
		for _, e := range entries {
			b.WriteString(fmt.Sprintf("### L%d [%s] %s\n\n", e.Line, strings.ToUpper(e.Severity.String()), sanitizeInline(e.Finding.Title)))
			b.WriteString(fmt.Sprintf("- ID: `%s`\n", e.Finding.ID))
			b.WriteString(fmt.Sprintf("- Category: `%s`\n", e.Finding.Category))
			if e.Finding.Engine != "" {
				b.WriteString(fmt.Sprintf("- Engine: `%s`\n", e.Finding.Engine))
			}
			if detail := Detail(e.Finding); detail != "" {
				b.WriteString(fmt.Sprintf("- Subject: `%s`\n", detail))
			}
			if e.LineSeverity != e.Severity {
				b.WriteString(fmt.Sprintf("- Line severity: `%s`\n", e.LineSeverity))
			}
			if d := strings.TrimSpace(e.Finding.Description); d != "" {
				b.WriteString("- Description:\n")
				b.WriteString(indentBlock(d))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Detail renders the category-specific subject of a finding. Secret values
// are masked.
func Detail(f model.Finding) string {
	switch f.Category {
	case model.CategoryDependency:
		if f.PackageName == "" {
			return ""
		}
		s := f.PackageName + "@" + f.PackageVersion
		if f.PackageManager != "" {
			s = f.PackageManager + ":" + s
		}
		return s
	case model.CategorySecret:
		return redact.Secret(f.SecretValue)
	case model.CategoryContainer:
		if f.ImageName == "" {
			return ""
		}
		return f.ImageName + ":" + f.ImageTag
	case model.CategoryIaC:
		return f.SimilarityID
	case model.CategoryCode:
		return f.RuleID
	default:
		return ""
	}
}

func sanitizeInline(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}

func indentBlock(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "  - (none provided)\n"
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = "  - " + strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "\n") + "\n"
}
