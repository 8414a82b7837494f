package domain

import (
	"net/url"
	"strings"
)

// Supported datasource providers
const (
	ProviderPostgres  = "postgresql"
	ProviderMySQL     = "mysql"
	ProviderSQLite    = "sqlite"
	ProviderMongoDB   = "mongodb"
	ProviderCockroach = "cockroachdb"
)

// StringFromEnvVar is a datasource property that is either a literal or
// read from an environment variable (env("NAME")).
type StringFromEnvVar struct {
	FromEnvVar string `json:"fromEnvVar"`
	Value      string `json:"value"`
}

// IsSet reports whether a literal value is available
func (s StringFromEnvVar) IsSet() bool {
	return s.Value != ""
}

// Datasource is a `datasource` block of a schema
type Datasource struct {
	Name               string           `json:"name"`
	Provider           string           `json:"provider"`
	ActiveProvider     string           `json:"activeProvider"`
	URL                StringFromEnvVar `json:"url"`
	DirectURL          StringFromEnvVar `json:"directUrl,omitzero"`
	SchemaNames        []string         `json:"schemas,omitempty"`
	RelationMode       string           `json:"relationMode,omitempty"`
	ProviderSpan       Span             `json:"-"`
	URLOverriddenByAPI bool             `json:"-"`
}

// Validate validates the datasource domain model
func (d *Datasource) Validate() error {
	if d == nil {
		return ErrInvalidDatasource
	}
	if d.Name == "" {
		return ErrInvalidDatasourceName
	}
	if !IsSupportedProvider(d.Provider) {
		return ErrUnsupportedProvider
	}
	return nil
}

// IsSupportedProvider reports whether an executor exists for provider
func IsSupportedProvider(provider string) bool {
	switch NormalizeProvider(provider) {
	case ProviderPostgres, ProviderMySQL, ProviderSQLite, ProviderMongoDB:
		return true
	}
	return false
}

// NormalizeProvider folds provider aliases into their canonical names
func NormalizeProvider(provider string) string {
	switch strings.ToLower(provider) {
	case "postgres", "postgresql", ProviderCockroach:
		return ProviderPostgres
	case "sqlite", "sqlite3", "file":
		return ProviderSQLite
	case "mysql", "mariadb":
		return ProviderMySQL
	case "mongodb", "mongodb+srv":
		return ProviderMongoDB
	}
	return strings.ToLower(provider)
}

// ProviderFromURL infers a provider from the connection string scheme.
func ProviderFromURL(raw string) (string, bool) {
	if strings.HasPrefix(raw, "file:") {
		return ProviderSQLite, true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "", false
	}
	provider := NormalizeProvider(u.Scheme)
	if !IsSupportedProvider(provider) {
		return "", false
	}
	return provider, true
}

// RedactURL hides the password of a connection string for logging.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// Domain errors
var (
	ErrInvalidDatasource     = &DomainError{Message: "datasource cannot be nil"}
	ErrInvalidDatasourceName = &DomainError{Message: "datasource name cannot be empty"}
	ErrUnsupportedProvider   = &DomainError{Message: "datasource provider is not supported"}
)

// DomainError represents a domain-level error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}
