package parser

import (
	"encoding/json"

	"github.com/hyperterse/queryengine/core/domain"
)

// LintMessage is one diagnostic in the Lint output
type LintMessage struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Text      string `json:"text"`
	IsWarning bool   `json:"is_warning"`
}

// Lint returns every error and warning of the schema as a JSON array
func Lint(raw string) string {
	diags := Validate(raw)
	messages := make([]LintMessage, 0, len(diags.Errors)+len(diags.Warnings))
	for _, d := range diags.Errors {
		messages = append(messages, LintMessage{Start: d.Span.Start, End: d.Span.End, Text: d.Message})
	}
	for _, d := range diags.Warnings {
		messages = append(messages, LintMessage{Start: d.Span.Start, End: d.Span.End, Text: d.Message, IsWarning: true})
	}
	out, _ := json.Marshal(messages)
	return string(out)
}

// GetConfigParams is the JSON input of GetConfig
type GetConfigParams struct {
	Datamodel           string            `json:"datamodel" validate:"required"`
	DatasourceOverrides map[string]string `json:"datasourceOverrides,omitempty"`
	IgnoreEnvVarErrors  bool              `json:"ignoreEnvVarErrors"`
	Env                 map[string]string `json:"env,omitempty"`
}

// ConfigResult is the JSON output of GetConfig
type ConfigResult struct {
	Datasources []*domain.Datasource `json:"datasources"`
	Generators  []*domain.Generator  `json:"generators"`
	Warnings    []string             `json:"warnings"`
}

// GetConfig returns the datasource and generator configuration of a schema
// with overrides and environment variables applied.
func GetConfig(params GetConfigParams) (*ConfigResult, error) {
	config, diags := ParseConfiguration(params.Datamodel)
	if err := diags.Err(); err != nil {
		return nil, err
	}
	if err := ResolveDatasourceURLs(config, "", params.DatasourceOverrides, params.Env); err != nil {
		return nil, err
	}
	if !params.IgnoreEnvVarErrors {
		for _, ds := range config.Datasources {
			if ds.URL.FromEnvVar != "" && ds.URL.Value == "" {
				return nil, domain.ConfigurationError("Environment variable not found: %s.", ds.URL.FromEnvVar)
			}
		}
	}

	warnings := make([]string, 0, len(diags.Warnings))
	for _, w := range diags.Warnings {
		warnings = append(warnings, w.Message)
	}
	return &ConfigResult{
		Datasources: config.Datasources,
		Generators:  config.Generators,
		Warnings:    warnings,
	}, nil
}
