package errors_test

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/shared/errors"
)

func TestFrom(t *testing.T) {
	_, urlErr := url.Parse("postgres://user:pa ss@host:port/db")
	require.Error(t, urlErr)

	syntaxErr := json.Unmarshal([]byte("{nope"), &struct{}{})
	require.Error(t, syntaxErr)

	tests := []struct {
		name            string
		err             error
		expectedKind    errors.ErrorKind
		expectedMessage string
	}{
		{
			name:            "configuration core error",
			err:             domain.ConfigurationError("Datasource URL not found"),
			expectedKind:    errors.KindConfiguration,
			expectedMessage: "Datasource URL not found",
		},
		{
			name:            "query core error",
			err:             domain.NewCoreError(domain.CoreQueryError, "bad query", nil),
			expectedKind:    errors.KindCore,
			expectedMessage: "QueryError: bad query",
		},
		{
			name: "connector error prefers user facing message",
			err: domain.NewConnectorError(domain.ConnectorConnectionError, stderrors.New("dial tcp: refused")).
				WithUserFacing(domain.NewKnownError(domain.CodeDatabaseUnreachable, "Can't reach database server", nil)),
			expectedKind:    errors.KindConnector,
			expectedMessage: "Can't reach database server",
		},
		{
			name:            "connector error without user facing message",
			err:             domain.NewConnectorError(domain.ConnectorQueryError, stderrors.New("boom")),
			expectedKind:    errors.KindConnector,
			expectedMessage: "QueryError: boom",
		},
		{
			name:         "url parse error",
			err:          urlErr,
			expectedKind: errors.KindConfiguration,
		},
		{
			name:         "json syntax error",
			err:          syntaxErr,
			expectedKind: errors.KindJSONDecode,
		},
		{
			name:            "unknown error",
			err:             stderrors.New("something else"),
			expectedKind:    errors.KindCore,
			expectedMessage: "something else",
		},
		{
			name:            "wrapped api error is returned as is",
			err:             fmt.Errorf("context: %w", errors.NotConnected()),
			expectedKind:    errors.KindNotConnected,
			expectedMessage: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := errors.From(tt.err)
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.expectedKind, apiErr.Kind)
			if tt.expectedMessage != "" {
				assert.Equal(t, tt.expectedMessage, apiErr.Message)
			}
		})
	}
}

func TestFromURLParseMessage(t *testing.T) {
	_, err := url.Parse("mysql://%zz")
	require.Error(t, err)

	apiErr := errors.From(err)
	assert.Equal(t, errors.KindConfiguration, apiErr.Kind)
	assert.Contains(t, apiErr.Message, "Error parsing connection string: ")
}

func TestFromNil(t *testing.T) {
	assert.Nil(t, errors.From(nil))
}

func TestConversion(t *testing.T) {
	var diags domain.Diagnostics
	diags.AddError(domain.Span{Start: 0, End: 5}, "Type %q is neither a built-in type, nor refers to another model or enum.", "Strin")
	diags.AddError(domain.Span{Start: 6, End: 9}, "second")

	apiErr := errors.Conversion(diags, "model A { id Strin @id }")
	assert.Equal(t, errors.KindConversion, apiErr.Kind)
	assert.Equal(t, `Type "Strin" is neither a built-in type, nor refers to another model or enum.`, apiErr.Message)
	assert.Equal(t, "model A { id Strin @id }", apiErr.Source)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name           string
		err            *errors.ApiError
		expectedStatus int
	}{
		{"engine not found", errors.EngineNotFound(), http.StatusNotFound},
		{"connector", errors.New(errors.KindConnector, "down"), http.StatusServiceUnavailable},
		{"conversion", errors.New(errors.KindConversion, "bad"), http.StatusBadRequest},
		{"json", errors.New(errors.KindJSONDecode, "bad"), http.StatusBadRequest},
		{"not connected", errors.NotConnected(), http.StatusConflict},
		{"core", errors.New(errors.KindCore, "x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedStatus, tt.err.Status())
		})
	}
}

func TestIsAndKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", errors.AlreadyConnected())

	assert.True(t, stderrors.Is(err, errors.AlreadyConnected()))
	assert.False(t, stderrors.Is(err, errors.NotConnected()))
	assert.True(t, errors.IsKind(err, errors.KindAlreadyConnected))
	assert.Equal(t, errors.ErrorKind(0), errors.KindOf(stderrors.New("plain")))
}

func TestPanic(t *testing.T) {
	err := errors.FromPanic("index out of range")
	assert.Equal(t, errors.KindCore, err.Kind)
	assert.Equal(t, "PANIC: index out of range", err.Message)
	assert.True(t, errors.IsPanic(err))
	assert.False(t, errors.IsPanic(errors.New(errors.KindCore, "regular")))
}

func TestMarshalJSON(t *testing.T) {
	data, err := json.Marshal(errors.EngineNotFound())
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"Connector","message":"Engine not found"}`, string(data))

	data, err = json.Marshal(errors.NotConnected())
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"NotConnected","message":"Engine is not connected"}`, string(data))
}
