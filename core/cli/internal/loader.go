package internal

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hyperterse/queryengine/core/infrastructure/cache"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/parser"
)

// DefaultSchemaFile is used when neither an argument nor a config file
// names the schema
const DefaultSchemaFile = "schema.prisma"

// DefaultPort is used when no flag, config file or PORT env var sets one
const DefaultPort = "4466"

// Project is a schema file and the optional queryengine.yaml next to it
type Project struct {
	// Config is nil when no config file was found
	Config     *parser.ProjectConfig
	SchemaPath string
	Datamodel  string
	// Dir resolves relative SQLite paths and .env files
	Dir string
}

// LoadProject reads the schema. schemaPath wins over the config file's
// schema; configPath defaults to ./queryengine.yaml when it exists.
func LoadProject(configPath, schemaPath string) (*Project, error) {
	log := logger.New("config")

	var config *parser.ProjectConfig
	if configPath == "" {
		if _, err := os.Stat(parser.DefaultConfigFile); err == nil {
			configPath = parser.DefaultConfigFile
		}
	}
	if configPath != "" {
		var err error
		if config, err = parser.LoadConfigFile(configPath); err != nil {
			return nil, log.Fail("config error: %w", err)
		}
		log.Debugf("Loaded config %s", configPath)
	}

	if schemaPath == "" {
		if config != nil {
			schemaPath = config.SchemaPath()
		} else {
			schemaPath = DefaultSchemaFile
		}
	}

	content, err := os.ReadFile(schemaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, log.Fail("schema file %s not found", schemaPath)
		}
		return nil, log.Fail("error reading schema: %w", err)
	}

	abs, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, log.Fail("invalid schema path %q: %w", schemaPath, err)
	}

	return &Project{
		Config:     config,
		SchemaPath: abs,
		Datamodel:  string(content),
		Dir:        filepath.Dir(abs),
	}, nil
}

// DatasourceURL returns the URL override, if any
func (p *Project) DatasourceURL(cliURL string) string {
	if cliURL != "" {
		return cliURL
	}
	if p.Config != nil {
		return p.Config.DatasourceURL
	}
	return ""
}

// DatasourceOverrides returns the per-datasource URL overrides of the config file
func (p *Project) DatasourceOverrides() map[string]string {
	if p.Config == nil {
		return nil
	}
	return p.Config.DatasourceOverrides
}

// ResolvePort resolves the port from CLI flag, config file, env var, or default
func ResolvePort(cliPort string, p *Project) string {
	if cliPort != "" {
		return cliPort
	}
	if p != nil && p.Config != nil && p.Config.Port > 0 {
		return strconv.Itoa(p.Config.Port)
	}
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return DefaultPort
}

// ResolveLogLevel resolves the log level from verbose flag, CLI flag,
// config file, or 0 to leave the environment's choice in place
func ResolveLogLevel(verbose bool, cliLogLevel int, p *Project) int {
	if verbose {
		return logger.LogLevelDebug
	}
	if cliLogLevel > 0 {
		return cliLogLevel
	}
	if p != nil && p.Config != nil && p.Config.LogLevel != "" {
		if level, ok := logger.ParseLogLevel(p.Config.LogLevel); ok {
			return level
		}
	}
	return 0
}

// CacheURL returns the DMMF cache URL of the config file or the environment
func CacheURL(p *Project) string {
	if p != nil && p.Config != nil && p.Config.Cache.URL != "" {
		return p.Config.Cache.URL
	}
	return os.Getenv(cache.URLEnv)
}
