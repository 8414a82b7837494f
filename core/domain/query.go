package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Action is an operation of the JSON query protocol
type Action string

const (
	ActionFindUnique        Action = "findUnique"
	ActionFindUniqueOrThrow Action = "findUniqueOrThrow"
	ActionFindFirst         Action = "findFirst"
	ActionFindFirstOrThrow  Action = "findFirstOrThrow"
	ActionFindMany          Action = "findMany"
	ActionCreateOne         Action = "createOne"
	ActionCreateMany        Action = "createMany"
	ActionUpdateOne         Action = "updateOne"
	ActionUpdateMany        Action = "updateMany"
	ActionDeleteOne         Action = "deleteOne"
	ActionDeleteMany        Action = "deleteMany"
	ActionAggregate         Action = "aggregate"
	ActionExecuteRaw        Action = "executeRaw"
	ActionQueryRaw          Action = "queryRaw"
)

// ModelActions are the per-model operations, in DMMF order
var ModelActions = []Action{
	ActionFindUnique, ActionFindUniqueOrThrow, ActionFindFirst, ActionFindFirstOrThrow,
	ActionFindMany, ActionCreateOne, ActionCreateMany, ActionUpdateOne, ActionUpdateMany,
	ActionDeleteOne, ActionDeleteMany, ActionAggregate,
}

// IsRaw reports whether the action runs a raw statement
func (a Action) IsRaw() bool {
	return a == ActionExecuteRaw || a == ActionQueryRaw
}

// IsWrite reports whether the action mutates data
func (a Action) IsWrite() bool {
	switch a {
	case ActionCreateOne, ActionCreateMany, ActionUpdateOne, ActionUpdateMany,
		ActionDeleteOne, ActionDeleteMany, ActionExecuteRaw:
		return true
	}
	return false
}

// ResultKey is the key of the action result inside "data", e.g. findManyUser.
func (a Action) ResultKey(model string) string {
	return string(a) + model
}

// QueryBody carries the arguments and selection of one operation
type QueryBody struct {
	Arguments map[string]any `json:"arguments"`
	Selection map[string]any `json:"selection"`
}

// QueryRequest is a single operation of the JSON query protocol
type QueryRequest struct {
	Action    Action    `json:"action"`
	ModelName string    `json:"modelName,omitempty"`
	Query     QueryBody `json:"query"`
}

// BatchTransaction requests that a batch runs inside one transaction
type BatchTransaction struct {
	IsolationLevel string `json:"isolationLevel,omitempty"`
}

// RequestBody is either a single operation or a batch
type RequestBody struct {
	Single      *QueryRequest
	Batch       []QueryRequest
	Transaction *BatchTransaction
}

// UnmarshalJSON accepts both the single and the batch shape. Numbers are
// kept as json.Number so large integers survive decoding.
func (r *RequestBody) UnmarshalJSON(data []byte) error {
	var probe struct {
		Batch       []QueryRequest    `json:"batch"`
		Transaction *BatchTransaction `json:"transaction"`
	}
	if err := decodeNumbers(data, &probe); err != nil {
		return err
	}
	if probe.Batch != nil {
		r.Batch = probe.Batch
		r.Transaction = probe.Transaction
		return nil
	}
	var single QueryRequest
	if err := decodeNumbers(data, &single); err != nil {
		return err
	}
	r.Single = &single
	return nil
}

// ParseRequestBody decodes a query request
func ParseRequestBody(data []byte) (RequestBody, error) {
	var body RequestBody
	err := body.UnmarshalJSON(data)
	return body, err
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// TxID identifies an open interactive transaction
type TxID string

func (id TxID) String() string {
	return string(id)
}

// Isolation levels accepted by StartTransaction
const (
	IsolationReadUncommitted = "ReadUncommitted"
	IsolationReadCommitted   = "ReadCommitted"
	IsolationRepeatableRead  = "RepeatableRead"
	IsolationSnapshot        = "Snapshot"
	IsolationSerializable    = "Serializable"
)

// Transaction defaults, in milliseconds
const (
	DefaultTxMaxWait = 2000
	DefaultTxTimeout = 5000
)

// TxInput is the JSON body of StartTransaction
type TxInput struct {
	MaxWait        int    `json:"maxWait" validate:"gte=0"`
	Timeout        int    `json:"timeout" validate:"gte=0"`
	IsolationLevel string `json:"isolationLevel,omitempty"`
}

// UnmarshalJSON accepts camelCase and snake_case keys. A null isolation
// level means the database default.
func (in *TxInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		MaxWait             *int    `json:"maxWait"`
		MaxWaitSnake        *int    `json:"max_wait"`
		Timeout             *int    `json:"timeout"`
		IsolationLevel      *string `json:"isolationLevel"`
		IsolationLevelSnake *string `json:"isolation_level"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*in = TxInput{}
	switch {
	case raw.MaxWait != nil:
		in.MaxWait = *raw.MaxWait
	case raw.MaxWaitSnake != nil:
		in.MaxWait = *raw.MaxWaitSnake
	}
	if raw.Timeout != nil {
		in.Timeout = *raw.Timeout
	}
	switch {
	case raw.IsolationLevel != nil:
		in.IsolationLevel = *raw.IsolationLevel
	case raw.IsolationLevelSnake != nil:
		in.IsolationLevel = *raw.IsolationLevelSnake
	}
	return nil
}

// WithDefaults fills unset timings with the defaults
func (in TxInput) WithDefaults() TxInput {
	if in.MaxWait == 0 {
		in.MaxWait = DefaultTxMaxWait
	}
	if in.Timeout == 0 {
		in.Timeout = DefaultTxTimeout
	}
	return in
}

// NormalizeIsolationLevel validates an isolation level name.
// The empty string means the database default.
func NormalizeIsolationLevel(level string) (string, bool) {
	switch strings.ReplaceAll(strings.ToLower(level), " ", "") {
	case "":
		return "", true
	case "readuncommitted":
		return IsolationReadUncommitted, true
	case "readcommitted":
		return IsolationReadCommitted, true
	case "repeatableread":
		return IsolationRepeatableRead, true
	case "snapshot":
		return IsolationSnapshot, true
	case "serializable":
		return IsolationSerializable, true
	}
	return "", false
}

// TxStarted is the JSON result of StartTransaction
type TxStarted struct {
	ID TxID `json:"id"`
}

// KnownErrorResponse is how known transaction errors are rendered on the
// success channel.
type KnownErrorResponse struct {
	IsPanic   bool           `json:"is_panic"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta"`
	ErrorCode string         `json:"error_code"`
}

// NewKnownErrorResponse renders a KnownError for the success channel
func NewKnownErrorResponse(known *KnownError) KnownErrorResponse {
	meta := known.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	return KnownErrorResponse{
		IsPanic:   false,
		Message:   known.Message,
		Meta:      meta,
		ErrorCode: known.ErrorCode,
	}
}

// ResponseError is one entry of an error response
type ResponseError struct {
	Error           string             `json:"error"`
	UserFacingError KnownErrorResponse `json:"user_facing_error"`
}

// ErrorResponse is how known query errors are embedded in query results
type ErrorResponse struct {
	Errors []ResponseError `json:"errors"`
}

// NewErrorResponse renders a KnownError as a query result
func NewErrorResponse(known *KnownError) ErrorResponse {
	return ErrorResponse{Errors: []ResponseError{{
		Error:           known.Message,
		UserFacingError: NewKnownErrorResponse(known),
	}}}
}
