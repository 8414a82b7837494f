package logger

import (
	"fmt"
	"os"

	"github.com/hyperterse/queryengine/core/domain/interfaces"
	"github.com/hyperterse/queryengine/core/infrastructure/logging"
)

const (
	LogLevelError = logging.LogLevelError
	LogLevelWarn  = logging.LogLevelWarn
	LogLevelInfo  = logging.LogLevelInfo
	LogLevelDebug = logging.LogLevelDebug
)

// TagsEnv is consulted when no explicit tag filter is configured.
const TagsEnv = "QUERY_ENGINE_LOG_TAGS"

// LevelEnv is consulted when no explicit log level is configured.
const LevelEnv = "QUERY_ENGINE_LOG_LEVEL"

func SetLogLevel(level int)              { logging.SetLogLevel(level) }
func GetLogLevel() int                   { return logging.GetLogLevel() }
func SetTagFilter(filterStr string)      { logging.SetTagFilter(filterStr) }
func SetLogFile() (string, error)        { return logging.SetLogFile() }
func CloseLogFile() error                { return logging.CloseLogFile() }
func ParseLogLevel(v string) (int, bool) { return logging.ParseLogLevel(v) }

// Options configure the process-wide logger
type Options struct {
	Level   int
	Verbose bool
	Tags    string
	File    bool
}

// Configure applies opts, falling back to QUERY_ENGINE_LOG_LEVEL and
// QUERY_ENGINE_LOG_TAGS. It returns the log file path when File is set.
func Configure(opts Options) (string, error) {
	switch {
	case opts.Verbose:
		SetLogLevel(LogLevelDebug)
	case opts.Level > 0:
		SetLogLevel(opts.Level)
	default:
		if level, ok := ParseLogLevel(os.Getenv(LevelEnv)); ok {
			SetLogLevel(level)
		}
	}

	tags := opts.Tags
	if tags == "" {
		tags = os.Getenv(TagsEnv)
	}
	SetTagFilter(tags)

	if !opts.File {
		return "", nil
	}
	return SetLogFile()
}

// Logger is a tagged logger that can also produce tagged errors
type Logger struct {
	interfaces.Logger
	tag string
}

// New creates a new logger instance with a tag
func New(tag string) *Logger {
	return &Logger{Logger: logging.New(tag), tag: tag}
}

// Fail builds an error carrying the logger's tag without logging it.
// The error is logged once, by whoever handles it at the top.
func (l *Logger) Fail(format string, args ...any) error {
	return WithTag(l.tag, fmt.Errorf(format, args...))
}
