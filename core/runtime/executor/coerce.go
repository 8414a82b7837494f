package executor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperterse/queryengine/core/domain"
)

// Tagged value types of the JSON protocol
const (
	typeDateTime = "DateTime"
	typeBigInt   = "BigInt"
	typeDecimal  = "Decimal"
	typeBytes    = "Bytes"
	typeJSON     = "Json"
	typeFieldRef = "FieldRef"
)

// dateTimeLayout is how DateTime values are written back to clients
const dateTimeLayout = "2006-01-02T15:04:05.000Z"

// taggedValue carries values plain JSON cannot represent, e.g.
// {"$type":"BigInt","value":"9007199254740993"}.
type taggedValue struct {
	Type  string `json:"$type"`
	Value any    `json:"value"`
}

func tagged(typ string, value any) taggedValue {
	return taggedValue{Type: typ, Value: value}
}

func untag(v any) (string, any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", nil, false
	}
	typ, ok := m["$type"].(string)
	if !ok {
		return "", nil, false
	}
	return typ, m["value"], true
}

// coerceInput converts a protocol value into the Go value bound for field
func coerceInput(qs *domain.QuerySchema, field *domain.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if typ, inner, ok := untag(value); ok {
		if typ == typeFieldRef {
			return nil, fmt.Errorf("field references are not supported")
		}
		value = inner
	}
	if field.IsList {
		return nil, fmt.Errorf("scalar lists are not supported")
	}

	if field.Kind == domain.FieldKindEnum {
		return coerceEnum(qs.Enums[field.Type], value)
	}

	switch domain.ScalarType(field.Type) {
	case domain.ScalarString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %s", describe(value))
		}
		return s, nil
	case domain.ScalarInt:
		n, err := convertToInt(value)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("unable to fit integer value '%d' into an INT4 (32-bit signed integer)", n)
		}
		return n, nil
	case domain.ScalarBigInt:
		return convertToInt(value)
	case domain.ScalarFloat:
		return convertToFloat(value)
	case domain.ScalarDecimal:
		return convertToDecimal(value)
	case domain.ScalarBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %s", describe(value))
		}
		return b, nil
	case domain.ScalarDateTime:
		return convertToDatetime(value)
	case domain.ScalarJSON:
		if s, ok := value.(string); ok {
			return s, nil
		}
		out, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cannot encode Json value: %w", err)
		}
		return string(out), nil
	case domain.ScalarBytes:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected base64 encoded bytes, got %s", describe(value))
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 bytes: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unsupported field type %s", field.Type)
}

// coerceEnum accepts an enum variant name and returns its database value
func coerceEnum(enum *domain.Enum, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected an enum value, got %s", describe(value))
	}
	if enum == nil {
		return s, nil
	}
	for _, v := range enum.Values {
		if v.Name == s {
			if v.DBName != "" {
				return v.DBName, nil
			}
			return v.Name, nil
		}
	}
	return nil, fmt.Errorf("value '%s' not found in enum '%s'", s, enum.Name)
}

func convertToInt(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d exceeds int64 max", v)
		}
		return int64(v), nil
	case float32:
		return convertToInt(float64(v))
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("cannot convert %v to int: not an integer", v)
		}
		return int64(v), nil
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert '%s' to int: %w", v, err)
		}
		return parsed, nil
	case []byte:
		return convertToInt(string(v))
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("cannot convert '%s' to int: %w", v, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot convert %s to int", describe(value))
	}
}

func convertToFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert '%s' to float: %w", v, err)
		}
		return parsed, nil
	case []byte:
		return convertToFloat(string(v))
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("cannot convert '%s' to float: %w", v, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot convert %s to float", describe(value))
	}
}

// convertToDecimal keeps decimals as strings so no precision is lost
func convertToDecimal(value any) (string, error) {
	switch v := value.(type) {
	case json.Number:
		return v.String(), nil
	case string:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "", fmt.Errorf("cannot convert '%s' to decimal", v)
		}
		return v, nil
	case []byte:
		return string(v), nil
	default:
		f, err := convertToFloat(value)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
}

var datetimeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func convertToDatetime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, format := range datetimeFormats {
			if t, err := time.Parse(format, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse '%s' as datetime", v)
	case []byte:
		return convertToDatetime(string(v))
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot parse '%s' as datetime", v)
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("cannot convert %s to datetime", describe(value))
	}
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number, float64, int64, int:
		return "a number"
	case []any:
		return "a list"
	case map[string]any:
		return "an object"
	}
	return fmt.Sprintf("%T", value)
}

// outputValue converts a driver value of field into its protocol encoding
func outputValue(qs *domain.QuerySchema, field *domain.Field, value any) any {
	if value == nil {
		return nil
	}
	if field.IsList {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
			return value
		}
		scalar := *field
		scalar.IsList = false
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = outputValue(qs, &scalar, rv.Index(i).Interface())
		}
		return out
	}

	if field.Kind == domain.FieldKindEnum {
		return enumName(qs.Enums[field.Type], asString(value))
	}

	switch domain.ScalarType(field.Type) {
	case domain.ScalarString:
		return asString(value)
	case domain.ScalarInt:
		if n, err := convertToInt(value); err == nil {
			return n
		}
	case domain.ScalarBigInt:
		if n, err := convertToInt(value); err == nil {
			return tagged(typeBigInt, strconv.FormatInt(n, 10))
		}
	case domain.ScalarFloat:
		if f, err := convertToFloat(value); err == nil {
			return f
		}
	case domain.ScalarDecimal:
		if d, err := convertToDecimal(value); err == nil {
			return tagged(typeDecimal, d)
		}
	case domain.ScalarBoolean:
		return asBool(value)
	case domain.ScalarDateTime:
		if t, err := convertToDatetime(value); err == nil {
			return tagged(typeDateTime, t.UTC().Format(dateTimeLayout))
		}
	case domain.ScalarJSON:
		switch v := value.(type) {
		case string:
			return tagged(typeJSON, v)
		case []byte:
			return tagged(typeJSON, string(v))
		}
		if out, err := json.Marshal(value); err == nil {
			return tagged(typeJSON, string(out))
		}
	case domain.ScalarBytes:
		if b, ok := value.([]byte); ok {
			return tagged(typeBytes, base64.StdEncoding.EncodeToString(b))
		}
	}
	return value
}

func enumName(enum *domain.Enum, dbValue string) string {
	if enum == nil {
		return dbValue
	}
	for _, v := range enum.Values {
		if v.DBName == dbValue || (v.DBName == "" && v.Name == dbValue) {
			return v.Name
		}
	}
	return dbValue
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asBool(value any) any {
	switch v := value.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case []byte:
		return string(v) == "1" || strings.EqualFold(string(v), "true")
	case string:
		return v == "1" || strings.EqualFold(v, "true")
	}
	return value
}

// rawValue converts a column value of a raw query result
func rawValue(value any) any {
	switch v := value.(type) {
	case []byte:
		if utf8.Valid(v) {
			return string(v)
		}
		return tagged(typeBytes, base64.StdEncoding.EncodeToString(v))
	case time.Time:
		return tagged(typeDateTime, v.UTC().Format(dateTimeLayout))
	}
	return value
}

// rawParameter converts a raw query parameter into a driver argument
func rawParameter(value any) (any, error) {
	if typ, inner, ok := untag(value); ok {
		switch typ {
		case typeDateTime:
			return convertToDatetime(inner)
		case typeBigInt:
			return convertToInt(inner)
		case typeDecimal:
			return convertToDecimal(inner)
		case typeBytes:
			s, _ := inner.(string)
			return base64.StdEncoding.DecodeString(s)
		case typeJSON:
			if s, ok := inner.(string); ok {
				return s, nil
			}
		}
		value = inner
	}
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return v.Float64()
	case map[string]any, []any:
		out, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(out), nil
	}
	return value, nil
}
