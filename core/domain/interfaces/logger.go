package interfaces

// Logger defines the interface for tagged, leveled logging
type Logger interface {
	// Tag returns the component tag attached to every line
	Tag() string

	Error(message string)
	Errorf(format string, args ...any)
	Warn(message string)
	Warnf(format string, args ...any)
	Info(message string)
	Infof(format string, args ...any)
	Debug(message string)
	Debugf(format string, args ...any)

	// Successf logs regardless of the configured level
	Successf(format string, args ...any)

	// PrintError logs err under a title; nil errors are ignored
	PrintError(title string, err error)
	// PrintValidationErrors logs a numbered list of validation errors
	PrintValidationErrors(errors []string)
}
