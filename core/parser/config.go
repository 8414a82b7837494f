package parser

import (
	"github.com/hyperterse/queryengine/core/domain"
)

var datasourceProperties = map[string]bool{
	"provider":          true,
	"url":               true,
	"directUrl":         true,
	"shadowDatabaseUrl": true,
	"relationMode":      true,
	"schemas":           true,
	"extensions":        true,
}

// validateConfiguration lowers datasource and generator blocks
func validateConfiguration(ast *SchemaAST, diags *domain.Diagnostics) *domain.Configuration {
	config := &domain.Configuration{
		Datasources: []*domain.Datasource{},
		Generators:  []*domain.Generator{},
	}

	seen := make(map[string]bool)
	for _, block := range ast.Datasources {
		if seen[block.Name] {
			diags.AddError(block.NameSpan, "The datasource %q cannot be defined because a datasource with that name already exists.", block.Name)
			continue
		}
		seen[block.Name] = true
		if ds := lowerDatasource(block, diags); ds != nil {
			config.Datasources = append(config.Datasources, ds)
		}
	}

	seen = make(map[string]bool)
	for _, block := range ast.Generators {
		if seen[block.Name] {
			diags.AddError(block.NameSpan, "The generator %q cannot be defined because a generator with that name already exists.", block.Name)
			continue
		}
		seen[block.Name] = true
		if gen := lowerGenerator(block, diags); gen != nil {
			config.Generators = append(config.Generators, gen)
		}
	}

	return config
}

func lowerDatasource(block *ConfigBlock, diags *domain.Diagnostics) *domain.Datasource {
	for _, prop := range block.Properties {
		if !datasourceProperties[prop.Key] {
			diags.AddError(prop.Span, "Property not known: %q.", prop.Key)
		}
	}

	ds := &domain.Datasource{Name: block.Name}

	provider, ok := block.Property("provider")
	if !ok {
		diags.AddError(block.Span, "The datasource %q is missing the required property \"provider\".", block.Name)
		return nil
	}
	if provider.Value.Kind != domain.ValueString {
		diags.AddError(provider.Value.Span, "Expected a String value, but received %s value `%s`.", kindName(provider.Value), provider.Value)
		return nil
	}
	ds.Provider = provider.Value.Text
	ds.ProviderSpan = provider.Value.Span
	ds.ActiveProvider = domain.NormalizeProvider(ds.Provider)
	if !domain.IsSupportedProvider(ds.Provider) {
		diags.AddError(provider.Value.Span, "Datasource provider not known: %q.", ds.Provider)
		return nil
	}

	if prop, ok := block.Property("url"); ok {
		if v, ok := stringFromEnvVar(prop, diags); ok {
			ds.URL = v
		}
	}
	if prop, ok := block.Property("directUrl"); ok {
		if v, ok := stringFromEnvVar(prop, diags); ok {
			ds.DirectURL = v
		}
	}

	if prop, ok := block.Property("relationMode"); ok {
		if prop.Value.Kind != domain.ValueString {
			diags.AddError(prop.Value.Span, "Expected a String value, but received %s value `%s`.", kindName(prop.Value), prop.Value)
		} else if prop.Value.Text != "foreignKeys" && prop.Value.Text != "prisma" {
			diags.AddError(prop.Value.Span, "Invalid relation mode setting: %q. Supported values: \"foreignKeys\", \"prisma\"", prop.Value.Text)
		} else {
			ds.RelationMode = prop.Value.Text
		}
	}

	if prop, ok := block.Property("schemas"); ok {
		names, ok := stringArray(prop.Value)
		if !ok {
			diags.AddError(prop.Value.Span, "Expected an array of strings for \"schemas\".")
		} else if ds.ActiveProvider != domain.ProviderPostgres {
			diags.AddError(prop.Span, "The `schemas` property is not supported on the current connector.")
		} else {
			ds.SchemaNames = names
		}
	}

	return ds
}

func lowerGenerator(block *ConfigBlock, diags *domain.Diagnostics) *domain.Generator {
	gen := &domain.Generator{
		Name:            block.Name,
		Config:          map[string]string{},
		BinaryTargets:   []string{},
		PreviewFeatures: []string{},
	}

	provider, ok := block.Property("provider")
	if !ok {
		diags.AddError(block.Span, "The generator %q is missing the required property \"provider\".", block.Name)
		return nil
	}
	v, ok := stringFromEnvVar(provider, diags)
	if !ok {
		return nil
	}
	gen.Provider = v

	for _, prop := range block.Properties {
		switch prop.Key {
		case "provider":
		case "output":
			if v, ok := stringFromEnvVar(prop, diags); ok {
				gen.Output = &v
			}
		case "binaryTargets":
			targets, ok := stringArray(prop.Value)
			if !ok {
				diags.AddError(prop.Value.Span, "Expected an array of strings for \"binaryTargets\".")
				continue
			}
			gen.BinaryTargets = targets
		case "previewFeatures":
			features, ok := stringArray(prop.Value)
			if !ok {
				diags.AddError(prop.Value.Span, "Expected an array of strings for \"previewFeatures\".")
				continue
			}
			for _, f := range features {
				if !knownPreviewFeatures[f] {
					diags.AddWarning(prop.Value.Span, "Preview feature %q is not known.", f)
				}
			}
			gen.PreviewFeatures = features
		default:
			if prop.Value.Kind == domain.ValueArray {
				gen.Config[prop.Key] = prop.Value.String()
			} else {
				gen.Config[prop.Key] = prop.Value.Text
			}
		}
	}

	return gen
}

var knownPreviewFeatures = map[string]bool{
	"fullTextSearch":       true,
	"fullTextIndex":        true,
	"multiSchema":          true,
	"views":                true,
	"relationJoins":        true,
	"driverAdapters":       true,
	"metrics":              true,
	"tracing":              true,
	"postgresqlExtensions": true,
}

// stringFromEnvVar reads a property written as "literal" or env("NAME")
func stringFromEnvVar(prop *Property, diags *domain.Diagnostics) (domain.StringFromEnvVar, bool) {
	switch prop.Value.Kind {
	case domain.ValueString:
		return domain.StringFromEnvVar{Value: prop.Value.Text}, true
	case domain.ValueFunction:
		if prop.Value.Text != "env" {
			diags.AddError(prop.Value.Span, "The function %q is not a known function. You can only use env() in %q.", prop.Value.Text, prop.Key)
			return domain.StringFromEnvVar{}, false
		}
		if len(prop.Value.Args) != 1 || prop.Value.Args[0].Kind != domain.ValueString {
			diags.AddError(prop.Value.Span, "The env() function expects exactly one string argument.")
			return domain.StringFromEnvVar{}, false
		}
		return domain.StringFromEnvVar{FromEnvVar: prop.Value.Args[0].Text}, true
	}
	diags.AddError(prop.Value.Span, "Expected a String value or env() function for %q, but received %s value `%s`.", prop.Key, kindName(prop.Value), prop.Value)
	return domain.StringFromEnvVar{}, false
}

func stringArray(v domain.Value) ([]string, bool) {
	if v.Kind != domain.ValueArray {
		return nil, false
	}
	out := make([]string, 0, len(v.Items))
	for _, item := range v.Items {
		if item.Kind != domain.ValueString {
			return nil, false
		}
		out = append(out, item.Text)
	}
	return out, true
}

func kindName(v domain.Value) string {
	switch v.Kind {
	case domain.ValueString:
		return "string"
	case domain.ValueNumber:
		return "numeric"
	case domain.ValueBoolean:
		return "boolean"
	case domain.ValueFunction:
		return "function"
	case domain.ValueArray:
		return "array"
	}
	return "constant"
}
