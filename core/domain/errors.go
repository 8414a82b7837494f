package domain

import (
	"errors"
	"fmt"
)

// Known error codes surfaced to clients
const (
	CodeAuthenticationFailed = "P1000"
	CodeDatabaseUnreachable  = "P1001"
	CodeDatabaseNotFound     = "P1003"
	CodeConnectionTimeout    = "P1008"
	CodeUniqueConstraint     = "P2002"
	CodeForeignKeyConstraint = "P2003"
	CodeNullConstraint       = "P2011"
	CodeMissingRequiredValue = "P2012"
	CodeQueryValidation      = "P2009"
	CodeRawQueryFailed       = "P2010"
	CodeValueTooLong         = "P2000"
	CodeRecordNotFound       = "P2025"
	CodeTransactionAPI       = "P2028"
)

// KnownError is a user-facing business error with a stable code.
type KnownError struct {
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta"`
}

func (e *KnownError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

// NewKnownError creates a KnownError. A nil meta is replaced by an empty map.
func NewKnownError(code, message string, meta map[string]any) *KnownError {
	if meta == nil {
		meta = map[string]any{}
	}
	return &KnownError{ErrorCode: code, Message: message, Meta: meta}
}

// AsKnownError finds a KnownError in err's chain
func AsKnownError(err error) (*KnownError, bool) {
	var known *KnownError
	if errors.As(err, &known) && known != nil {
		return known, true
	}
	return nil, false
}

// ConnectorErrorKind classifies low-level datasource failures
type ConnectorErrorKind string

const (
	ConnectorConnectionError     ConnectorErrorKind = "ConnectionError"
	ConnectorAuthenticationError ConnectorErrorKind = "AuthenticationFailed"
	ConnectorDatabaseNotFound    ConnectorErrorKind = "DatabaseDoesNotExist"
	ConnectorTimeout             ConnectorErrorKind = "ConnectTimeout"
	ConnectorQueryError          ConnectorErrorKind = "QueryError"
	ConnectorInvalidURL          ConnectorErrorKind = "InvalidConnectionString"
	ConnectorUnsupported         ConnectorErrorKind = "UnsupportedFeature"
)

// ConnectorError is raised by datasource connectors. UserFacing is set when
// the failure maps onto a known error the client should see as-is.
type ConnectorError struct {
	Kind       ConnectorErrorKind
	UserFacing *KnownError
	Err        error
}

func (e *ConnectorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *ConnectorError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.UserFacing != nil {
		errs = append(errs, e.UserFacing)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewConnectorError creates a ConnectorError
func NewConnectorError(kind ConnectorErrorKind, err error) *ConnectorError {
	return &ConnectorError{Kind: kind, Err: err}
}

// WithUserFacing attaches a known error to the connector error
func (e *ConnectorError) WithUserFacing(known *KnownError) *ConnectorError {
	e.UserFacing = known
	return e
}

// CoreErrorKind classifies query engine core failures
type CoreErrorKind string

const (
	CoreConfigurationError CoreErrorKind = "ConfigurationError"
	CoreConnectorError     CoreErrorKind = "ConnectorError"
	CoreQueryError         CoreErrorKind = "QueryError"
	CoreTransactionError   CoreErrorKind = "TransactionError"
	CoreInternalError      CoreErrorKind = "InternalError"
)

// CoreError is the error type of the query core: schema building,
// executors and transactions.
type CoreError struct {
	Kind    CoreErrorKind
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// NewCoreError creates a CoreError
func NewCoreError(kind CoreErrorKind, message string, err error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Err: err}
}

// ConfigurationError is shorthand for a configuration CoreError
func ConfigurationError(format string, args ...any) *CoreError {
	return &CoreError{Kind: CoreConfigurationError, Message: fmt.Sprintf(format, args...)}
}
