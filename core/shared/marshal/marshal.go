// Package marshal converts between NUL-terminated byte strings, as they
// arrive from and leave through the C boundary, and Go values.
package marshal

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"github.com/hyperterse/queryengine/core/domain"
)

var (
	// ErrInvalidUTF8 is returned for input that is not valid UTF-8
	ErrInvalidUTF8 = errors.New("string is not valid UTF-8")
	// ErrInteriorNUL is returned when an output string contains a NUL byte
	ErrInteriorNUL = errors.New("string contains an interior NUL byte")
	// ErrNilInput is returned for a missing required string
	ErrNilInput = errors.New("required string is null")
)

// DecodeCString reads buf up to its first NUL byte and validates UTF-8.
// A nil buf is a null pointer.
func DecodeCString(buf []byte) (string, error) {
	if buf == nil {
		return "", ErrNilInput
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	if !utf8.Valid(buf) {
		return "", ErrInvalidUTF8
	}
	return string(buf), nil
}

// DecodeOptional decodes an optional string. Null, empty or undecodable
// input is reported as absent.
func DecodeOptional(buf []byte) (string, bool) {
	s, err := DecodeCString(buf)
	if err != nil || s == "" {
		return "", false
	}
	return s, true
}

// EncodeCString returns s as a NUL-terminated byte string. Strings that
// already contain NUL are rejected rather than truncated.
func EncodeCString(s string) ([]byte, error) {
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		return nil, ErrInteriorNUL
	}
	out := make([]byte, len(s)+1)
	copy(out, s)
	return out, nil
}

// SanitizeOutput replaces interior NUL bytes so s can always cross the
// boundary. Used for error messages, which must never fail to encode.
func SanitizeOutput(s string) string {
	if bytes.IndexByte([]byte(s), 0) < 0 {
		return s
	}
	return string(bytes.ReplaceAll([]byte(s), []byte{0}, []byte("\\u0000")))
}

// ParseTxID turns an optional transaction id into a *domain.TxID.
func ParseTxID(buf []byte) *domain.TxID {
	s, ok := DecodeOptional(buf)
	if !ok {
		return nil
	}
	id := domain.TxID(s)
	return &id
}

// TxIDFromString is ParseTxID for already decoded strings
func TxIDFromString(s string) *domain.TxID {
	if s == "" {
		return nil
	}
	id := domain.TxID(s)
	return &id
}
