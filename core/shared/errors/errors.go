package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hyperterse/queryengine/core/domain"
)

// ErrorKind is the closed set of failures crossing the engine boundary.
// The numeric values are part of the C ABI.
type ErrorKind int32

const (
	KindConversion       ErrorKind = 1
	KindConfiguration    ErrorKind = 2
	KindCore             ErrorKind = 3
	KindConnector        ErrorKind = 4
	KindAlreadyConnected ErrorKind = 5
	KindNotConnected     ErrorKind = 6
	KindJSONDecode       ErrorKind = 7
)

func (k ErrorKind) String() string {
	switch k {
	case KindConversion:
		return "Conversion"
	case KindConfiguration:
		return "Configuration"
	case KindCore:
		return "Core"
	case KindConnector:
		return "Connector"
	case KindAlreadyConnected:
		return "AlreadyConnected"
	case KindNotConnected:
		return "NotConnected"
	case KindJSONDecode:
		return "JsonDecode"
	}
	return fmt.Sprintf("ErrorKind(%d)", int32(k))
}

// PanicPrefix marks Core errors produced by a recovered fault
const PanicPrefix = "PANIC: "

// ApiError is the error returned by every boundary operation
type ApiError struct {
	Kind    ErrorKind
	Message string
	// Source is the schema text a Conversion error refers to
	Source string
	Err    error
}

// Error implements the error interface
func (e *ApiError) Error() string {
	switch e.Kind {
	case KindAlreadyConnected:
		return "Engine is already connected"
	case KindNotConnected:
		return "Engine is not connected"
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *ApiError) Unwrap() error {
	return e.Err
}

// Is matches another *ApiError of the same kind
func (e *ApiError) Is(target error) bool {
	t, ok := target.(*ApiError)
	return ok && t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Status maps the error kind onto an HTTP status code
func (e *ApiError) Status() int {
	switch e.Kind {
	case KindConversion, KindConfiguration, KindJSONDecode:
		return http.StatusBadRequest
	case KindAlreadyConnected, KindNotConnected:
		return http.StatusConflict
	case KindConnector:
		if e.Message == engineNotFound {
			return http.StatusNotFound
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MarshalJSON renders the error for the HTTP surface
func (e *ApiError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Source  string `json:"source,omitempty"`
	}{
		Kind:    e.Kind.String(),
		Message: e.messageText(),
		Source:  e.Source,
	})
}

func (e *ApiError) messageText() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error()
}

// New creates an ApiError
func New(kind ErrorKind, message string) *ApiError {
	return &ApiError{Kind: kind, Message: message}
}

// Wrap creates an ApiError around err
func Wrap(kind ErrorKind, message string, err error) *ApiError {
	return &ApiError{Kind: kind, Message: message, Err: err}
}

const engineNotFound = "Engine not found"

// EngineNotFound is returned for unknown handles
func EngineNotFound() *ApiError {
	return New(KindConnector, engineNotFound)
}

// AlreadyConnected is returned by Builder-only operations on a connected engine
func AlreadyConnected() *ApiError {
	return New(KindAlreadyConnected, "")
}

// NotConnected is returned by Connected-only operations on a builder engine
func NotConnected() *ApiError {
	return New(KindNotConnected, "")
}

// Conversion reports invalid schema text. The message is the first
// diagnostic; source is the schema it came from.
func Conversion(diagnostics domain.Diagnostics, source string) *ApiError {
	msg := "invalid schema"
	if len(diagnostics.Errors) > 0 {
		msg = diagnostics.Errors[0].Message
	}
	return &ApiError{
		Kind:    KindConversion,
		Message: msg,
		Source:  source,
		Err:     &domain.DiagnosticsError{Diagnostics: diagnostics},
	}
}

// Configuration reports a configuration failure
func Configuration(message string) *ApiError {
	return New(KindConfiguration, message)
}

// FromCoreError converts a core failure. Configuration failures keep their
// kind; everything else is Core with the formatted message.
func FromCoreError(err *domain.CoreError) *ApiError {
	if err.Kind == domain.CoreConfigurationError {
		msg := err.Message
		if msg == "" && err.Err != nil {
			msg = err.Err.Error()
		}
		return Wrap(KindConfiguration, msg, err)
	}
	var connErr *domain.ConnectorError
	if stderrors.As(err, &connErr) {
		return FromConnectorError(connErr)
	}
	return Wrap(KindCore, err.Error(), err)
}

// FromConnectorError converts a connector failure, preferring the
// user-facing message when one is attached.
func FromConnectorError(err *domain.ConnectorError) *ApiError {
	if err.UserFacing != nil {
		return Wrap(KindConnector, err.UserFacing.Message, err)
	}
	return Wrap(KindConnector, err.Error(), err)
}

// FromURLParse converts a connection string parse failure
func FromURLParse(err error) *ApiError {
	return Wrap(KindConfiguration, "Error parsing connection string: "+err.Error(), err)
}

// FromJSON converts a JSON decode failure
func FromJSON(err error) *ApiError {
	return Wrap(KindJSONDecode, err.Error(), err)
}

// FromPanic converts a recovered fault message
func FromPanic(message string) *ApiError {
	return New(KindCore, PanicPrefix+message)
}

// From converts any error into an ApiError. Unknown errors become Core.
func From(err error) *ApiError {
	if err == nil {
		return nil
	}

	var apiErr *ApiError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	var diagErr *domain.DiagnosticsError
	if stderrors.As(err, &diagErr) {
		return Conversion(diagErr.Diagnostics, "")
	}

	var coreErr *domain.CoreError
	if stderrors.As(err, &coreErr) {
		return FromCoreError(coreErr)
	}

	var connErr *domain.ConnectorError
	if stderrors.As(err, &connErr) {
		return FromConnectorError(connErr)
	}

	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return FromURLParse(urlErr)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &syntaxErr) || stderrors.As(err, &typeErr) {
		return FromJSON(err)
	}

	return Wrap(KindCore, err.Error(), err)
}

// KindOf returns the kind of err, or 0 when err is not an ApiError
func KindOf(err error) ErrorKind {
	var apiErr *ApiError
	if stderrors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// IsKind checks whether err is an ApiError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsPanic checks whether err is a Core error produced by a recovered fault
func IsPanic(err error) bool {
	var apiErr *ApiError
	if !stderrors.As(err, &apiErr) || apiErr.Kind != KindCore {
		return false
	}
	return strings.HasPrefix(apiErr.Message, PanicPrefix)
}
