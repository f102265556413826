package report

import (
	"sort"

	"github.com/goccy/go-json"

	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/source"
	"crossmod/internal/shared/version"
)

// SARIF v2.1.0 schema, see https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
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
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID           string          `json:"ruleId"`
	Level            string          `json:"level"`
	Message          sarifMessage    `json:"message"`
	Locations        []sarifLocation `json:"locations,omitempty"`
	RelatedLocations []sarifRelated  `json:"relatedLocations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifRelated struct {
	ID               int                   `json:"id"`
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
	Message          sarifMessage          `json:"message"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
}

var ruleDescriptions = map[diag.Code]string{
	diag.CodeSyntax:              "The unit could not be parsed.",
	diag.CodeHighlyErroneous:     "The unit does not contain a recognizable module.",
	diag.CodeDuplicateModule:     "Two units declare the same module name.",
	diag.CodeMissingModule:       "An imported module does not exist.",
	diag.CodeNotASN1Module:       "An ASN.1 module imports from a module of another notation.",
	diag.CodeSelfImport:          "A module imports itself.",
	diag.CodeSymbolNotExported:   "An imported symbol is not exported by its module.",
	diag.CodeAmbiguousSymbol:     "A reference matches symbols imported from several modules.",
	diag.CodeNoSuchAssignment:    "A name does not resolve to any assignment.",
	diag.CodeDuplicateImport:     "A module or symbol is imported more than once.",
	diag.CodeDuplicateSymbol:     "A symbol is listed more than once.",
	diag.CodeCircularImport:      "Modules import each other in a cycle.",
	diag.CodeUnusedImport:        "Nothing imported from a module is used.",
	diag.CodeDuplicateAssignment: "A name is defined more than once in a module.",
	diag.CodeInternal:            "The analyzer failed on this module.",
}

// GenerateSARIF builds a SARIF v2.1.0 document with one rule per diagnostic
// code. File URIs are made relative to projectRoot.
func GenerateSARIF(projectRoot string, diagnostics []*diag.Diagnostic) ([]byte, error) {
	results := make([]sarifResult, 0, len(diagnostics))
	levels := make(map[diag.Code]string)

	for _, d := range diagnostics {
		level := sarifLevel(d.Severity)
		if prev, ok := levels[d.Code]; !ok || prev != "error" {
			levels[d.Code] = level
		}
		result := sarifResult{
			RuleID:    string(d.Code),
			Level:     level,
			Message:   sarifMessage{Text: d.Message},
			Locations: []sarifLocation{{PhysicalLocation: physicalLocation(projectRoot, d.Location.Unit, d.Location.Line, d.Location.Column)}},
		}
		for i, r := range d.Related {
			result.RelatedLocations = append(result.RelatedLocations, sarifRelated{
				ID:               i + 1,
				PhysicalLocation: physicalLocation(projectRoot, r.Location.Unit, r.Location.Line, r.Location.Column),
				Message:          sarifMessage{Text: r.Message},
			})
		}
		results = append(results, result)
	}

	report := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    "crossmod",
						Version: version.Version,
						Rules:   buildSARIFRules(levels),
					},
				},
				Results: results,
			},
		},
	}
	return json.MarshalIndent(report, "", "  ")
}

// buildSARIFRules returns only the rules that have results, sorted by id.
func buildSARIFRules(levels map[diag.Code]string) []sarifRule {
	rules := make([]sarifRule, 0, len(levels))
	for code, level := range levels {
		desc, ok := ruleDescriptions[code]
		if !ok {
			desc = string(code)
		}
		rules = append(rules, sarifRule{
			ID:               string(code),
			Name:             string(code),
			ShortDescription: sarifMessage{Text: desc},
			DefaultConfig:    sarifRuleDefaultConfig{Level: level},
		})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

func physicalLocation(projectRoot string, unit source.Handle, line, column int) sarifPhysicalLocation {
	loc := sarifPhysicalLocation{
		ArtifactLocation: sarifArtifactLocation{
			URI:       relativePath(projectRoot, string(unit)),
			URIBaseID: "%SRCROOT%",
		},
	}
	if line > 0 {
		loc.Region = &sarifRegion{StartLine: line, StartColumn: column}
	}
	return loc
}

func sarifLevel(s diag.Severity) string {
	switch s {
	case diag.Error:
		return "error"
	case diag.Warning:
		return "warning"
	default:
		return "note"
	}
}
