package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// MetaKind identifies the shape of a MetaValue.
type MetaKind string

// Supported metadata kinds.
const (
	MetaNumber     MetaKind = "number"
	MetaString     MetaKind = "string"
	MetaBool       MetaKind = "bool"
	MetaNumberList MetaKind = "number-list"
	MetaStringList MetaKind = "string-list"
)

// Well-known metadata keys.
const (
	MetaKeyGSM   = "gsm"
	MetaKeyPrice = "price"
)

// MetaValue is a tagged scalar or flat list attached to an option.
// On the wire it is the plain JSON value.
type MetaValue struct {
	Kind    MetaKind
	Num     float64
	Str     string
	Bool    bool
	Nums    []float64
	Strings []string
}

// NumberValue returns a number MetaValue.
func NumberValue(n float64) MetaValue { return MetaValue{Kind: MetaNumber, Num: n} }

// StringValue returns a string MetaValue.
func StringValue(s string) MetaValue { return MetaValue{Kind: MetaString, Str: s} }

// BoolValue returns a bool MetaValue.
func BoolValue(b bool) MetaValue { return MetaValue{Kind: MetaBool, Bool: b} }

// NumberListValue returns a number-list MetaValue.
func NumberListValue(ns ...float64) MetaValue {
	return MetaValue{Kind: MetaNumberList, Nums: append([]float64{}, ns...)}
}

// StringListValue returns a string-list MetaValue.
func StringListValue(ss ...string) MetaValue {
	return MetaValue{Kind: MetaStringList, Strings: append([]string{}, ss...)}
}

// MarshalJSON implements json.Marshaler.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case MetaNumber:
		return json.Marshal(v.Num)
	case MetaString:
		return json.Marshal(v.Str)
	case MetaBool:
		return json.Marshal(v.Bool)
	case MetaNumberList:
		if v.Nums == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Nums)
	case MetaStringList:
		if v.Strings == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Strings)
	}
	return nil, fmt.Errorf("metadata: unknown kind %q", v.Kind)
}

// UnmarshalJSON implements json.Unmarshaler. Objects, nulls, nested arrays
// and mixed arrays are rejected.
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := metaFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v MetaValue) MarshalYAML() (any, error) {
	switch v.Kind {
	case MetaNumber:
		return v.Num, nil
	case MetaString:
		return v.Str, nil
	case MetaBool:
		return v.Bool, nil
	case MetaNumberList:
		return v.Nums, nil
	case MetaStringList:
		return v.Strings, nil
	}
	return nil, fmt.Errorf("metadata: unknown kind %q", v.Kind)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *MetaValue) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := metaFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func metaFromAny(raw any) (MetaValue, error) {
	switch x := raw.(type) {
	case bool:
		return BoolValue(x), nil
	case string:
		return StringValue(x), nil
	case []any:
		return metaListFromAny(x)
	}
	if n, ok := toFloat(raw); ok {
		return NumberValue(n), nil
	}
	return MetaValue{}, fmt.Errorf("metadata: unsupported value of type %T", raw)
}

func metaListFromAny(items []any) (MetaValue, error) {
	if len(items) == 0 {
		return NumberListValue(), nil
	}
	if _, ok := items[0].(string); ok {
		out := make([]string, len(items))
		for i, it := range items {
			s, ok := it.(string)
			if !ok {
				return MetaValue{}, fmt.Errorf("metadata: mixed list at index %d", i)
			}
			out[i] = s
		}
		return MetaValue{Kind: MetaStringList, Strings: out}, nil
	}
	out := make([]float64, len(items))
	for i, it := range items {
		n, ok := toFloat(it)
		if !ok {
			return MetaValue{}, fmt.Errorf("metadata: mixed list at index %d", i)
		}
		out[i] = n
	}
	return MetaValue{Kind: MetaNumberList, Nums: out}, nil
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Metadata is the free-form attribute map of an option, e.g. the paper
// weights a material supports.
type Metadata map[string]MetaValue

// Clone returns an independent copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		v.Nums = append([]float64(nil), v.Nums...)
		v.Strings = append([]string(nil), v.Strings...)
		out[k] = v
	}
	return out
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Number returns the numeric value stored under key.
func (m Metadata) Number(key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v.Kind != MetaNumber {
		return 0, false
	}
	return v.Num, true
}

// NumberList returns the number list stored under key. A single number is
// returned as a one-element list.
func (m Metadata) NumberList(key string) ([]float64, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	switch v.Kind {
	case MetaNumberList:
		return append([]float64{}, v.Nums...), true
	case MetaNumber:
		return []float64{v.Num}, true
	}
	return nil, false
}

// String returns the string value stored under key.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v.Kind != MetaString {
		return "", false
	}
	return v.Str, true
}

// GSM returns the paper weights listed under the gsm key.
func (m Metadata) GSM() []int {
	nums, ok := m.NumberList(MetaKeyGSM)
	if !ok {
		return nil
	}
	out := make([]int, len(nums))
	for i, n := range nums {
		out[i] = int(n)
	}
	return out
}

// Price returns the price stored under the price key.
func (m Metadata) Price() (float64, bool) {
	return m.Number(MetaKeyPrice)
}

// DefaultValue is a component's initial selection: a single option id or a
// list of ids.
type DefaultValue struct {
	Single string
	List   []string
	IsList bool
}

// SingleDefault returns a single-valued default.
func SingleDefault(v string) *DefaultValue { return &DefaultValue{Single: v} }

// ListDefault returns a list-valued default.
func ListDefault(vs ...string) *DefaultValue {
	return &DefaultValue{List: append([]string{}, vs...), IsList: true}
}

// Values returns the default as a list of ids.
func (d DefaultValue) Values() []string {
	if d.IsList {
		return append([]string{}, d.List...)
	}
	if d.Single == "" {
		return nil
	}
	return []string{d.Single}
}

func (d DefaultValue) clone() DefaultValue {
	d.List = cloneStrings(d.List)
	return d
}

// MarshalJSON implements json.Marshaler.
func (d DefaultValue) MarshalJSON() ([]byte, error) {
	if d.IsList {
		if d.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(d.List)
	}
	return json.Marshal(d.Single)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DefaultValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("defaultValue: %w", err)
		}
		*d = DefaultValue{List: list, IsList: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return fmt.Errorf("defaultValue: %w", err)
	}
	*d = DefaultValue{Single: s}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d DefaultValue) MarshalYAML() (any, error) {
	if d.IsList {
		return d.List, nil
	}
	return d.Single, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *DefaultValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*d = DefaultValue{List: list, IsList: true}
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	*d = DefaultValue{Single: s}
	return nil
}
