package logging

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/hyperterse/queryengine/core/domain/interfaces"
)

const (
	LogLevelError = 1
	LogLevelWarn  = 2
	LogLevelInfo  = 3
	LogLevelDebug = 4
)

// LogDir is where SetLogFile places log files.
const LogDir = "/tmp/.queryengine/logs"

var (
	globalLogLevel = LogLevelInfo
	logLevelMutex  sync.RWMutex

	tagFilter      []string
	tagFilterMutex sync.RWMutex

	logFile      *os.File
	logFileMutex sync.Mutex
	logWriter    io.Writer = os.Stderr
)

// SetLogLevel sets the global log level. Out of range values are ignored.
func SetLogLevel(level int) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	if level >= LogLevelError && level <= LogLevelDebug {
		globalLogLevel = level
		zerolog.SetGlobalLevel(convertLogLevel(level))
	}
}

// GetLogLevel returns the current global log level
func GetLogLevel() int {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return globalLogLevel
}

// ParseLogLevel maps a level name or number ("debug", "4") to a log level.
func ParseLogLevel(value string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "error":
		return LogLevelError, true
	case "2", "warn", "warning":
		return LogLevelWarn, true
	case "3", "info":
		return LogLevelInfo, true
	case "4", "debug", "trace":
		return LogLevelDebug, true
	}
	return 0, false
}

// SetTagFilter sets the tag filter from a comma-separated string.
// A leading "-" excludes a tag; "engine" also matches "engine:<sub>".
func SetTagFilter(filterStr string) {
	tagFilterMutex.Lock()
	defer tagFilterMutex.Unlock()

	if filterStr == "" {
		tagFilter = nil
		return
	}

	tags := strings.Split(filterStr, ",")
	tagFilter = make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tagFilter = append(tagFilter, tag)
		}
	}
}

func matchesTag(tag, filterTag string) bool {
	return tag == filterTag || strings.HasPrefix(tag, filterTag+":")
}

func shouldLogTag(tag string) bool {
	tagFilterMutex.RLock()
	defer tagFilterMutex.RUnlock()

	if len(tagFilter) == 0 {
		return true
	}

	hasInclusion := false
	included := false
	for _, filterTag := range tagFilter {
		if excluded, ok := strings.CutPrefix(filterTag, "-"); ok {
			if matchesTag(tag, excluded) {
				return false
			}
			continue
		}
		hasInclusion = true
		if matchesTag(tag, filterTag) {
			included = true
		}
	}

	return included || !hasInclusion
}

// SetLogFile tees log output into a fresh file under LogDir and returns its path.
func SetLogFile() (string, error) {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	if err := os.MkdirAll(LogDir, 0755); err != nil {
		return "", err
	}

	filePath := filepath.Join(LogDir, "queryengine-"+generateLogFileHash()+".log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}

	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file
	logWriter = io.MultiWriter(os.Stderr, file)
	log.Logger = zerolog.New(consoleOutput(logWriter)).With().Timestamp().Logger()

	return filePath, nil
}

// CloseLogFile closes the log file if it's open
func CloseLogFile() error {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	logWriter = os.Stderr
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	return err
}

func generateLogFileHash() string {
	randomBytes := make([]byte, 8)
	_, _ = rand.Read(randomBytes)

	hashInput := fmt.Sprintf("%d-%d-%x", time.Now().UnixNano(), os.Getpid(), randomBytes)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])[:8]
}

// ZerologLogger implements interfaces.Logger on top of zerolog
type ZerologLogger struct {
	tag    string
	logger zerolog.Logger
}

// Logger is the interface exported from this package
type Logger = interfaces.Logger

// New creates a logger for tag. Filtered tags get a no-op logger.
func New(tag string) Logger {
	if !shouldLogTag(tag) {
		return noOpLogger{}
	}

	logFileMutex.Lock()
	out := logWriter
	logFileMutex.Unlock()

	return &ZerologLogger{
		tag:    tag,
		logger: zerolog.New(consoleOutput(out)).With().Str("tag", tag).Timestamp().Logger(),
	}
}

// consoleOutput switches to the pretty console writer when stderr is a terminal.
func consoleOutput(w io.Writer) io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02T15:04:05.000Z"}
	}
	return w
}

func convertLogLevel(level int) zerolog.Level {
	switch level {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func enabled(level int) bool {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return level <= globalLogLevel
}

// Tag returns the tag the logger was created with
func (l *ZerologLogger) Tag() string {
	return l.tag
}

func (l *ZerologLogger) Error(message string) {
	if enabled(LogLevelError) {
		l.logger.Error().Msg(message)
	}
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	if enabled(LogLevelError) {
		l.logger.Error().Msgf(format, args...)
	}
}

func (l *ZerologLogger) Warn(message string) {
	if enabled(LogLevelWarn) {
		l.logger.Warn().Msg(message)
	}
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	if enabled(LogLevelWarn) {
		l.logger.Warn().Msgf(format, args...)
	}
}

func (l *ZerologLogger) Info(message string) {
	if enabled(LogLevelInfo) {
		l.logger.Info().Msg(message)
	}
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	if enabled(LogLevelInfo) {
		l.logger.Info().Msgf(format, args...)
	}
}

func (l *ZerologLogger) Debug(message string) {
	if enabled(LogLevelDebug) {
		l.logger.Debug().Msg(message)
	}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	if enabled(LogLevelDebug) {
		l.logger.Debug().Msgf(format, args...)
	}
}

// Successf is always emitted, regardless of the configured level.
func (l *ZerologLogger) Successf(format string, args ...any) {
	l.logger.WithLevel(zerolog.NoLevel).Str("status", "ok").Msgf(format, args...)
}

// PrintError logs err under title. Nil errors are ignored.
func (l *ZerologLogger) PrintError(title string, err error) {
	if err == nil {
		return
	}
	l.Errorf("%s: %v", title, err)
}

// PrintValidationErrors logs one numbered line per validation error
func (l *ZerologLogger) PrintValidationErrors(errors []string) {
	if len(errors) == 0 {
		return
	}
	l.Errorf("Validation Errors (%d)", len(errors))
	for i, err := range errors {
		l.Errorf("  %d. %s", i+1, err)
	}
}

type noOpLogger struct{}

func (noOpLogger) Tag() string                    { return "" }
func (noOpLogger) Error(string)                   {}
func (noOpLogger) Errorf(string, ...any)          {}
func (noOpLogger) Warn(string)                    {}
func (noOpLogger) Warnf(string, ...any)           {}
func (noOpLogger) Info(string)                    {}
func (noOpLogger) Infof(string, ...any)           {}
func (noOpLogger) Debug(string)                   {}
func (noOpLogger) Debugf(string, ...any)          {}
func (noOpLogger) Successf(string, ...any)        {}
func (noOpLogger) PrintError(string, error)       {}
func (noOpLogger) PrintValidationErrors([]string) {}
