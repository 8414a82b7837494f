package executor

import (
	"bytes"
	"encoding/json"
)

// record is a result object that keeps its keys in selection order
type record struct {
	keys   []string
	values map[string]any
}

func newRecord(size int) *record {
	return &record{keys: make([]string, 0, size), values: make(map[string]any, size)}
}

func (r *record) set(key string, value any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r *record) get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// MarshalJSON writes the keys in insertion order
func (r *record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
