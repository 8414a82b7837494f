package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the file name looked up by the CLI
const DefaultConfigFile = "queryengine.yaml"

// ProjectConfig is the CLI configuration file
type ProjectConfig struct {
	Schema              string            `yaml:"schema" validate:"required"`
	DatasourceURL       string            `yaml:"datasourceUrl"`
	DatasourceOverrides map[string]string `yaml:"datasourceOverrides"`
	Port                int               `yaml:"port" validate:"omitempty,min=1,max=65535"`
	LogLevel            string            `yaml:"logLevel" validate:"omitempty,oneof=error warn info debug"`
	Cache               CacheConfig       `yaml:"cache"`

	// Dir is the directory of the file; relative paths resolve against it
	Dir string `yaml:"-"`
}

// CacheConfig configures the DMMF cache
type CacheConfig struct {
	URL        string `yaml:"url" validate:"omitempty,url"`
	TTLSeconds int    `yaml:"ttlSeconds" validate:"gte=0"`
}

// SchemaPath returns the schema path resolved against the config directory
func (c *ProjectConfig) SchemaPath() string {
	if filepath.IsAbs(c.Schema) || c.Dir == "" {
		return c.Schema
	}
	return filepath.Join(c.Dir, c.Schema)
}

var (
	// Environment variable pattern: {{ env.VARIABLE_NAME }}
	envVarPattern = regexp.MustCompile(`\{\{\s*env\.(\w+)\s*\}\}`)

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// LoadConfigFile reads and validates a queryengine.yaml file
func LoadConfigFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	config, err := ParseConfigFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	config.Dir = abs
	return config, nil
}

// ParseConfigFile parses YAML content into a ProjectConfig. {{ env.NAME }}
// placeholders in connection strings are substituted.
func ParseConfigFile(data []byte) (*ProjectConfig, error) {
	var config ProjectConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	var err error
	if config.DatasourceURL, err = substituteEnvVars(config.DatasourceURL); err != nil {
		return nil, fmt.Errorf("datasourceUrl: %w", err)
	}
	for name, value := range config.DatasourceOverrides {
		if config.DatasourceOverrides[name], err = substituteEnvVars(value); err != nil {
			return nil, fmt.Errorf("datasourceOverrides.%s: %w", name, err)
		}
	}
	if config.Cache.URL, err = substituteEnvVars(config.Cache.URL); err != nil {
		return nil, fmt.Errorf("cache.url: %w", err)
	}

	if err := validate.Struct(&config); err != nil {
		return nil, validationError(err)
	}
	return &config, nil
}

func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// substituteEnvVars replaces {{ env.VARIABLE_NAME }} placeholders with environment variable values
func substituteEnvVars(value string) (string, error) {
	result := value
	seen := make(map[string]bool)

	for _, match := range envVarPattern.FindAllStringSubmatch(value, -1) {
		placeholder, name := match[0], match[1]
		if seen[placeholder] {
			continue
		}
		seen[placeholder] = true

		envValue, exists := os.LookupEnv(name)
		if !exists {
			return "", fmt.Errorf("environment variable '%s' not found", name)
		}
		result = strings.ReplaceAll(result, placeholder, envValue)
	}

	return result, nil
}
