package context

import (
	"context"
	"crypto/rand"
	"encoding/base64"
)

type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// EngineIDKey is the context key for the engine handle
	EngineIDKey contextKey = "engine_id"
	// TxIDKey is the context key for the interactive transaction ID
	TxIDKey contextKey = "tx_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithEngineID adds an engine handle to the context
func WithEngineID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, EngineIDKey, id)
}

// GetEngineID retrieves the engine handle from context
func GetEngineID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(EngineIDKey).(int64)
	return id, ok
}

// WithTxID adds a transaction ID to the context
func WithTxID(ctx context.Context, txID string) context.Context {
	return context.WithValue(ctx, TxIDKey, txID)
}

// GetTxID retrieves the transaction ID from context
func GetTxID(ctx context.Context) string {
	if id, ok := ctx.Value(TxIDKey).(string); ok {
		return id
	}
	return ""
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
