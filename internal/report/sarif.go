package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"scancoord/internal/model"
	"scancoord/internal/safefile"
)

// SARIF v2.1.0 types, minimal subset for code-scanning uploads.

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name,omitempty"`
	ShortDescription sarifMessage        `json:"shortDescription,omitempty"`
	DefaultConfig    *sarifDefaultConfig `json:"defaultConfiguration,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
	Properties          *sarifProperties  `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}

type sarifProperties struct {
	Severity     string `json:"severity,omitempty"`
	LineSeverity string `json:"lineSeverity,omitempty"`
	Category     string `json:"category,omitempty"`
	Engine       string `json:"engine,omitempty"`
}

func EncodeSARIF(w io.Writer, report Report) error {
	log := buildSARIF(redactReport(report))
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(log); err != nil {
		return fmt.Errorf("encode sarif report: %w", err)
	}
	return nil
}

func WriteSARIF(path string, report Report) error {
	var b bytes.Buffer
	if err := EncodeSARIF(&b, report); err != nil {
		return err
	}
	if err := safefile.WriteFileAtomic(path, b.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write sarif report: %w", err)
	}
	return nil
}

func buildSARIF(report Report) sarifLog {
	ruleIndex := map[string]int{}
	var rules []sarifRule
	results := []sarifResult{}

	for _, file := range report.Files {
		uri := filepath.ToSlash(file.Path)
		for _, e := range file.Entries {
			f := e.Finding
			ruleID := sarifRuleID(f)
			level := mapSeverityToSARIF(e.Severity)
			if _, seen := ruleIndex[ruleID]; !seen {
				ruleIndex[ruleID] = len(rules)
				rules = append(rules, sarifRule{
					ID:               ruleID,
					Name:             f.Title,
					ShortDescription: sarifMessage{Text: f.Title},
					DefaultConfig:    &sarifDefaultConfig{Level: level},
				})
			}

			message := f.Description
			if message == "" {
				message = f.Title
			}
			region := &sarifRegion{StartLine: e.Line}
			if len(f.Locations) > 0 {
				region.StartColumn = f.Locations[0].StartColumn
				region.EndColumn = f.Locations[0].EndColumn
			}

			res := sarifResult{
				RuleID:  ruleID,
				Level:   level,
				Message: sarifMessage{Text: message},
				Locations: []sarifLocation{{
					PhysicalLocation: sarifPhysicalLocation{
						ArtifactLocation: sarifArtifactLocation{URI: uri},
						Region:           region,
					},
				}},
				Properties: &sarifProperties{
					Severity:     e.Severity.String(),
					LineSeverity: e.LineSeverity.String(),
					Category:     string(f.Category),
					Engine:       f.Engine,
				},
			}
			if key, err := model.KeyOf(f); err == nil {
				res.PartialFingerprints = map[string]string{"naturalKey/v1": key.String()}
			}
			results = append(results, res)
		}
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:    report.Tool,
					Version: report.Version,
					Rules:   rules,
				},
			},
			Results: results,
		}},
	}
}

func sarifRuleID(f model.Finding) string {
	if id := strings.TrimSpace(f.RuleID); id != "" {
		return id
	}
	if id := strings.TrimSpace(f.ID); id != "" {
		return id
	}
	return "scancoord-finding"
}

func mapSeverityToSARIF(sev model.Severity) string {
	switch sev {
	case model.SeverityMalicious, model.SeverityCritical, model.SeverityHigh:
		return "error"
	case model.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
