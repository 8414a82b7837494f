package parser

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperterse/queryengine/core/domain"
)

// DefaultDatasourceName is used when a datasource is synthesized from a
// connection string alone.
const DefaultDatasourceName = "db"

// ResolveDatasourceURLs applies URL overrides to the configuration and then
// substitutes env("NAME") values eagerly. A variable that is not set leaves
// the URL empty; Connect reports it.
//
// urlOverride replaces the URL of the first datasource, or defines a
// datasource named "db" when the schema has none. overrides replace URLs by
// datasource name.
func ResolveDatasourceURLs(config *domain.Configuration, urlOverride string, overrides map[string]string, env map[string]string) error {
	if urlOverride != "" {
		if len(config.Datasources) == 0 {
			provider, ok := domain.ProviderFromURL(urlOverride)
			if !ok {
				return domain.ConfigurationError("Could not infer a datasource provider from the connection string %q.", domain.RedactURL(urlOverride))
			}
			config.Datasources = append(config.Datasources, &domain.Datasource{
				Name:           DefaultDatasourceName,
				Provider:       provider,
				ActiveProvider: provider,
			})
		}
		ds := config.Datasources[0]
		ds.URL = domain.StringFromEnvVar{Value: urlOverride}
		ds.URLOverriddenByAPI = true
	}

	for name, override := range overrides {
		ds := findDatasource(config, name)
		if ds == nil {
			return domain.ConfigurationError("The datasource %q specified in the overrides does not exist in the schema.", name)
		}
		ds.URL = domain.StringFromEnvVar{Value: override}
		ds.URLOverriddenByAPI = true
	}

	for _, ds := range config.Datasources {
		ds.URL = substitute(ds.URL, env)
		ds.DirectURL = substitute(ds.DirectURL, env)
	}
	return nil
}

func findDatasource(config *domain.Configuration, name string) *domain.Datasource {
	for _, ds := range config.Datasources {
		if ds.Name == name {
			return ds
		}
	}
	return nil
}

func substitute(v domain.StringFromEnvVar, env map[string]string) domain.StringFromEnvVar {
	if v.FromEnvVar == "" || v.Value != "" {
		return v
	}
	if value, ok := env[v.FromEnvVar]; ok {
		v.Value = value
		return v
	}
	if value, ok := os.LookupEnv(v.FromEnvVar); ok {
		v.Value = value
	}
	return v
}

// ValidateOneDatasource returns the sole datasource of the configuration
func ValidateOneDatasource(config *domain.Configuration) (*domain.Datasource, error) {
	switch len(config.Datasources) {
	case 0:
		return nil, domain.ConfigurationError("No valid datasource found in the schema. Exactly one datasource is required.")
	case 1:
		return config.Datasources[0], nil
	}
	names := make([]string, len(config.Datasources))
	for i, ds := range config.Datasources {
		names[i] = ds.Name
	}
	return nil, domain.ConfigurationError("Found %d datasources (%s). Exactly one datasource is required.",
		len(config.Datasources), strings.Join(names, ", "))
}

// LoadURL returns the connection string of ds, checked against its provider.
// Relative sqlite paths are resolved against configDir.
func LoadURL(ds *domain.Datasource, configDir string) (string, error) {
	raw := ds.URL.Value
	if raw == "" {
		if ds.URL.FromEnvVar != "" {
			return "", domain.ConfigurationError("Environment variable not found: %s.", ds.URL.FromEnvVar)
		}
		return "", domain.ConfigurationError("Datasource URL not found")
	}

	if err := checkScheme(ds, raw); err != nil {
		return "", err
	}

	if ds.ActiveProvider == domain.ProviderSQLite {
		return resolveSQLitePath(raw, configDir), nil
	}

	if _, err := url.Parse(raw); err != nil {
		return "", err
	}
	return raw, nil
}

var providerSchemes = map[string][]string{
	domain.ProviderPostgres: {"postgresql://", "postgres://"},
	domain.ProviderMySQL:    {"mysql://"},
	domain.ProviderSQLite:   {"file:"},
	domain.ProviderMongoDB:  {"mongodb://", "mongodb+srv://"},
}

func checkScheme(ds *domain.Datasource, raw string) error {
	schemes, ok := providerSchemes[ds.ActiveProvider]
	if !ok {
		return domain.ConfigurationError("Datasource provider not known: %q.", ds.Provider)
	}
	for _, s := range schemes {
		if strings.HasPrefix(raw, s) {
			return nil
		}
	}
	quoted := make([]string, len(schemes))
	for i, s := range schemes {
		quoted[i] = "`" + s + "`"
	}
	return domain.ConfigurationError("Error validating datasource `%s`: the URL must start with the protocol %s.",
		ds.Name, strings.Join(quoted, " or "))
}

func resolveSQLitePath(raw, configDir string) string {
	rest := strings.TrimPrefix(raw, "file:")
	path, query, _ := strings.Cut(rest, "?")
	if path == "" || path == ":memory:" || filepath.IsAbs(path) || configDir == "" {
		return raw
	}
	resolved := "file:" + filepath.Join(configDir, path)
	if query != "" {
		resolved += "?" + query
	}
	return resolved
}
