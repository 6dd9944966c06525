package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MetaValue holds a meta value that CrowdSec may send either as a plain
// string, as a string containing a JSON array, or as a decoded array.
type MetaValue struct {
	scalar string
	list   []string
	isList bool
}

// ScalarMeta wraps a single string value.
func ScalarMeta(s string) MetaValue { return MetaValue{scalar: s} }

// ListMeta wraps an already decoded list of values.
func ListMeta(values ...string) MetaValue {
	return MetaValue{list: append([]string(nil), values...), isList: true}
}

// IsList reports whether the value was received in list form.
func (v MetaValue) IsList() bool { return v.isList }

// Strings normalizes the value to a list. A scalar holding a JSON array is
// decoded; any other scalar becomes a one-element list.
func (v MetaValue) Strings() []string {
	if v.isList {
		return append([]string{}, v.list...)
	}
	if v.scalar == "" {
		return []string{""}
	}
	trimmed := strings.TrimSpace(v.scalar)
	if strings.HasPrefix(trimmed, "[") {
		var raw []any
		if err := json.Unmarshal([]byte(trimmed), &raw); err == nil {
			return stringify(raw)
		}
	}
	return []string{v.scalar}
}

// String returns the first normalized value.
func (v MetaValue) String() string {
	if s := v.Strings(); len(s) > 0 {
		return s[0]
	}
	return ""
}

// MarshalJSON always emits the normalized list form.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Strings())
}

// UnmarshalJSON accepts a string, an array or any other JSON scalar.
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = MetaValue{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		return json.Unmarshal(data, &v.scalar)
	case '[':
		var raw []any
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode meta list: %w", err)
		}
		v.list = stringify(raw)
		v.isList = true
		return nil
	default:
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode meta value: %w", err)
		}
		v.scalar = stringifyOne(raw)
		return nil
	}
}

func stringify(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, stringifyOne(item))
	}
	return out
}

func stringifyOne(item any) string {
	switch t := item.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
