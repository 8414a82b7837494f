package executor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/queryengine/core/domain"
)

var roleEnum = &domain.Enum{
	Name: "Role",
	Values: []domain.EnumValue{
		{Name: "ADMIN", DBName: "admin"},
		{Name: "USER"},
	},
}

var coerceSchema = &domain.QuerySchema{Enums: map[string]*domain.Enum{"Role": roleEnum}}

func scalar(typ string) *domain.Field {
	return &domain.Field{Name: "f", Type: typ, Kind: domain.FieldKindScalar}
}

func TestCoerceInput(t *testing.T) {
	role := &domain.Field{Name: "role", Type: "Role", Kind: domain.FieldKindEnum}
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		field   *domain.Field
		value   any
		want    any
		wantErr string
	}{
		{name: "null", field: scalar("String"), value: nil, want: nil},
		{name: "string", field: scalar("String"), value: "x", want: "x"},
		{name: "string from number", field: scalar("String"), value: json.Number("1"), wantErr: "expected a string, got a number"},
		{name: "int", field: scalar("Int"), value: json.Number("42"), want: int64(42)},
		{name: "int overflow", field: scalar("Int"), value: json.Number("2147483648"), wantErr: "INT4"},
		{name: "int fraction", field: scalar("Int"), value: json.Number("1.5"), wantErr: "cannot convert"},
		{name: "bigint tagged", field: scalar("BigInt"), value: map[string]any{"$type": "BigInt", "value": "9007199254740993"}, want: int64(9007199254740993)},
		{name: "float", field: scalar("Float"), value: json.Number("2.5"), want: 2.5},
		{name: "decimal keeps digits", field: scalar("Decimal"), value: json.Number("1.10"), want: "1.10"},
		{name: "decimal tagged", field: scalar("Decimal"), value: map[string]any{"$type": "Decimal", "value": "0.30"}, want: "0.30"},
		{name: "boolean", field: scalar("Boolean"), value: true, want: true},
		{name: "boolean from string", field: scalar("Boolean"), value: "true", wantErr: "expected a boolean"},
		{name: "datetime tagged", field: scalar("DateTime"), value: map[string]any{"$type": "DateTime", "value": "2024-03-01T12:30:00.000Z"}, want: at},
		{name: "datetime garbage", field: scalar("DateTime"), value: "yesterday", wantErr: "cannot parse"},
		{name: "json object", field: scalar("Json"), value: map[string]any{"a": json.Number("1")}, want: `{"a":1}`},
		{name: "json tagged", field: scalar("Json"), value: map[string]any{"$type": "Json", "value": `[1,2]`}, want: `[1,2]`},
		{name: "bytes", field: scalar("Bytes"), value: map[string]any{"$type": "Bytes", "value": "aGk="}, want: []byte("hi")},
		{name: "bytes invalid", field: scalar("Bytes"), value: "!!", wantErr: "invalid base64"},
		{name: "field ref", field: scalar("Int"), value: map[string]any{"$type": "FieldRef", "value": map[string]any{"_ref": "x"}}, wantErr: "field references"},
		{name: "enum mapped", field: role, value: "ADMIN", want: "admin"},
		{name: "enum unmapped", field: role, value: "USER", want: "USER"},
		{name: "enum unknown", field: role, value: "ROOT", wantErr: "value 'ROOT' not found in enum 'Role'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerceInput(coerceSchema, tt.field, tt.value)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if want, ok := tt.want.(time.Time); ok {
				assert.True(t, want.Equal(got.(time.Time)), "got %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputValue(t *testing.T) {
	role := &domain.Field{Name: "role", Type: "Role", Kind: domain.FieldKindEnum}
	tags := &domain.Field{Name: "tags", Type: "BigInt", Kind: domain.FieldKindScalar, IsList: true}
	at := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.FixedZone("CET", 3600))

	tests := []struct {
		name  string
		field *domain.Field
		value any
		want  any
	}{
		{"null", scalar("Int"), nil, nil},
		{"int from bytes", scalar("Int"), []byte("7"), int64(7)},
		{"bigint", scalar("BigInt"), int64(9007199254740993), taggedValue{Type: "BigInt", Value: "9007199254740993"}},
		{"decimal", scalar("Decimal"), []byte("12.50"), taggedValue{Type: "Decimal", Value: "12.50"}},
		{"datetime", scalar("DateTime"), at, taggedValue{Type: "DateTime", Value: "2024-03-01T11:30:00.123Z"}},
		{"datetime from sqlite text", scalar("DateTime"), "2024-03-01 11:30:00", taggedValue{Type: "DateTime", Value: "2024-03-01T11:30:00.000Z"}},
		{"boolean from int", scalar("Boolean"), int64(1), true},
		{"json", scalar("Json"), []byte(`{"a":1}`), taggedValue{Type: "Json", Value: `{"a":1}`}},
		{"bytes", scalar("Bytes"), []byte("hi"), taggedValue{Type: "Bytes", Value: "aGk="}},
		{"enum", role, []byte("admin"), "ADMIN"},
		{"list", tags, []int64{1, 2}, []any{taggedValue{Type: "BigInt", Value: "1"}, taggedValue{Type: "BigInt", Value: "2"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outputValue(coerceSchema, tt.field, tt.value))
		})
	}
}

func TestRawValue(t *testing.T) {
	assert.Equal(t, "text", rawValue([]byte("text")))
	assert.Equal(t, taggedValue{Type: "Bytes", Value: "/w=="}, rawValue([]byte{0xff}))
	assert.Equal(t, taggedValue{Type: "DateTime", Value: "2024-01-02T03:04:05.000Z"},
		rawValue(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, int64(3), rawValue(int64(3)))
}

func TestRawParameter(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"integer", json.Number("3"), int64(3)},
		{"bigint", map[string]any{"$type": "BigInt", "value": "12"}, int64(12)},
		{"decimal", map[string]any{"$type": "Decimal", "value": "1.5"}, "1.5"},
		{"bytes", map[string]any{"$type": "Bytes", "value": "aGk="}, []byte("hi")},
		{"string", "x", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rawParameter(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordMarshalKeepsOrder(t *testing.T) {
	r := newRecord(3)
	r.set("z", 1)
	r.set("a", "two")
	r.set("m", nil)
	r.set("z", 3)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"z":3,"a":"two","m":null}`, string(out))
}
