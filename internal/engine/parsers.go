package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"scancoord/internal/model"
)

// Parser converts a tool's JSON report into findings.
type Parser func(data []byte) ([]model.Finding, error)

var parsers = map[string]Parser{
	"trivy":   ParseTrivy,
	"semgrep": ParseSemgrep,
	"kics":    ParseKICS,
	"sarif":   ParseSARIF,
}

func LookupParser(name string) (Parser, bool) {
	p, ok := parsers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func ParserNames() []string {
	out := make([]string, 0, len(parsers))
	for name := range parsers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type trivyReport struct {
	ArtifactName string `json:"ArtifactName"`
	ArtifactType string `json:"ArtifactType"`
	Results      []struct {
		Target          string `json:"Target"`
		Class           string `json:"Class"`
		Type            string `json:"Type"`
		Vulnerabilities []struct {
			VulnerabilityID  string `json:"VulnerabilityID"`
			PkgName          string `json:"PkgName"`
			InstalledVersion string `json:"InstalledVersion"`
			Severity         string `json:"Severity"`
			Title            string `json:"Title"`
			Description      string `json:"Description"`
		} `json:"Vulnerabilities"`
		Misconfigurations []struct {
			ID            string `json:"ID"`
			AVDID         string `json:"AVDID"`
			Title         string `json:"Title"`
			Description   string `json:"Description"`
			Severity      string `json:"Severity"`
			CauseMetadata struct {
				StartLine int `json:"StartLine"`
				EndLine   int `json:"EndLine"`
			} `json:"CauseMetadata"`
		} `json:"Misconfigurations"`
		Secrets []struct {
			RuleID    string `json:"RuleID"`
			Title     string `json:"Title"`
			Severity  string `json:"Severity"`
			StartLine int    `json:"StartLine"`
			Match     string `json:"Match"`
		} `json:"Secrets"`
	} `json:"Results"`
}

// ParseTrivy maps language-package vulnerabilities to dependency findings,
// OS-package vulnerabilities of an image to container findings,
// misconfigurations to IaC findings and secrets to secret findings.
func ParseTrivy(data []byte) ([]model.Finding, error) {
	var doc trivyReport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse trivy report: %w", err)
	}
	image, tag := splitImage(doc.ArtifactName)

	var out []model.Finding
	for _, r := range doc.Results {
		for _, v := range r.Vulnerabilities {
			f := model.Finding{
				ID:          v.VulnerabilityID + ":" + v.PkgName + "@" + v.InstalledVersion,
				Engine:      "trivy",
				Title:       firstNonEmpty(v.Title, v.VulnerabilityID),
				Description: v.Description,
				Severity:    model.ParseSeverity(v.Severity),
				RuleID:      v.VulnerabilityID,
			}
			if r.Class == "os-pkgs" && doc.ArtifactType == "container_image" {
				f.Category = model.CategoryContainer
				f.ImageName = image
				f.ImageTag = tag
			} else {
				f.Category = model.CategoryDependency
				f.PackageManager = r.Type
				f.PackageName = v.PkgName
				f.PackageVersion = v.InstalledVersion
			}
			out = append(out, f)
		}
		for _, m := range r.Misconfigurations {
			out = append(out, model.Finding{
				Engine:       "trivy",
				Category:     model.CategoryIaC,
				Title:        firstNonEmpty(m.Title, m.ID),
				Description:  m.Description,
				Severity:     model.ParseSeverity(m.Severity),
				SimilarityID: firstNonEmpty(m.AVDID, m.ID),
				RuleID:       m.ID,
				Locations:    lineLocation(m.CauseMetadata.StartLine),
			})
		}
		for _, s := range r.Secrets {
			out = append(out, model.Finding{
				Engine:      "trivy",
				Category:    model.CategorySecret,
				Title:       firstNonEmpty(s.Title, s.RuleID),
				Severity:    model.ParseSeverity(s.Severity),
				SecretValue: s.Match,
				RuleID:      s.RuleID,
				Locations:   lineLocation(s.StartLine),
			})
		}
	}
	return out, nil
}

type semgrepReport struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
			Col  int `json:"col"`
		} `json:"start"`
		End struct {
			Line int `json:"line"`
			Col  int `json:"col"`
		} `json:"end"`
		Extra struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
		} `json:"extra"`
	} `json:"results"`
}

func ParseSemgrep(data []byte) ([]model.Finding, error) {
	var doc semgrepReport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse semgrep report: %w", err)
	}
	out := make([]model.Finding, 0, len(doc.Results))
	for _, r := range doc.Results {
		loc := model.Location{Line: r.Start.Line, StartColumn: r.Start.Col}
		if r.End.Line == r.Start.Line {
			loc.EndColumn = r.End.Col
		}
		out = append(out, model.Finding{
			Engine:      "semgrep",
			Category:    model.CategoryCode,
			Title:       ruleTitle(r.CheckID),
			Description: r.Extra.Message,
			Severity:    model.ParseSeverity(r.Extra.Severity),
			RuleID:      r.CheckID,
			Locations:   []model.Location{loc},
		})
	}
	return out, nil
}

type kicsQuery struct {
	QueryName   string `json:"query_name"`
	QueryID     string `json:"query_id"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Files       []struct {
		FileName     string `json:"file_name"`
		Line         int    `json:"line"`
		SimilarityID string `json:"similarity_id"`
	} `json:"files"`
}

type kicsReport struct {
	Queries []kicsQuery `json:"queries"`
}

func ParseKICS(data []byte) ([]model.Finding, error) {
	var doc kicsReport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse kics report: %w", err)
	}
	var out []model.Finding
	for _, q := range doc.Queries {
		for _, file := range q.Files {
			out = append(out, model.Finding{
				Engine:       "kics",
				Category:     model.CategoryIaC,
				Title:        q.QueryName,
				Description:  q.Description,
				Severity:     model.ParseSeverity(q.Severity),
				SimilarityID: file.SimilarityID,
				RuleID:       q.QueryID,
				Locations:    lineLocation(file.Line),
			})
		}
	}
	return out, nil
}

type sarifReport struct {
	Runs []struct {
		Tool struct {
			Driver struct {
				Name string `json:"name"`
			} `json:"driver"`
		} `json:"tool"`
		Results []struct {
			RuleID  string `json:"ruleId"`
			Level   string `json:"level"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
			Locations []struct {
				PhysicalLocation struct {
					Region struct {
						StartLine   int `json:"startLine"`
						StartColumn int `json:"startColumn"`
						EndColumn   int `json:"endColumn"`
					} `json:"region"`
				} `json:"physicalLocation"`
			} `json:"locations"`
		} `json:"results"`
	} `json:"runs"`
}

// ParseSARIF reads any SARIF 2.1.0 producer as a code-rule engine.
func ParseSARIF(data []byte) ([]model.Finding, error) {
	var doc sarifReport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sarif report: %w", err)
	}
	var out []model.Finding
	for _, run := range doc.Runs {
		engineName := strings.ToLower(strings.TrimSpace(run.Tool.Driver.Name))
		for _, r := range run.Results {
			f := model.Finding{
				Engine:      engineName,
				Category:    model.CategoryCode,
				Title:       ruleTitle(r.RuleID),
				Description: r.Message.Text,
				Severity:    model.ParseSeverity(firstNonEmpty(r.Level, "warning")),
				RuleID:      r.RuleID,
			}
			for _, loc := range r.Locations {
				reg := loc.PhysicalLocation.Region
				if reg.StartLine < 1 {
					continue
				}
				f.Locations = append(f.Locations, model.Location{
					Line:        reg.StartLine,
					StartColumn: reg.StartColumn,
					EndColumn:   reg.EndColumn,
				})
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func lineLocation(line int) []model.Location {
	if line < 1 {
		return nil
	}
	return []model.Location{{Line: line}}
}

// ruleTitle turns a dotted rule id into its last segment.
func ruleTitle(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, "."); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}

func splitImage(ref string) (name, tag string) {
	ref = strings.TrimSpace(ref)
	if at := strings.Index(ref, "@"); at >= 0 {
		return ref[:at], ref[at+1:]
	}
	slash := strings.LastIndex(ref, "/")
	if colon := strings.LastIndex(ref, ":"); colon > slash {
		return ref[:colon], ref[colon+1:]
	}
	return ref, "latest"
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
