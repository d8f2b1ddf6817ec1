package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Record is an insertion-ordered string-keyed object. The zero value is not
// usable; construct with NewRecord.
type Record struct {
	keys   []string
	values map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: map[string]Value{}}
}

// RecordFromMap builds a record from a Go map, with keys in sorted order.
func RecordFromMap(in map[string]any) *Record {
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rec := NewRecord()
	for _, key := range keys {
		rec.Set(key, FromAny(in[key]))
	}
	return rec
}

// ParseRecord decodes a JSON object.
func ParseRecord(data []byte) (*Record, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if v.Kind() == KindNull {
		return NewRecord(), nil
	}
	if v.Kind() != KindObject {
		return nil, fmt.Errorf("decode record: expected object, got %s", v.Kind())
	}
	return v.Record(), nil
}

// Len returns the number of keys.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Set stores value under key. Existing keys keep their position.
func (r *Record) Set(key string, value Value) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// SetBefore stores value under key, placing a new key immediately before
// anchor. Falls back to Set when the key exists or the anchor is missing.
func (r *Record) SetBefore(key string, value Value, anchor string) {
	if _, ok := r.values[key]; ok || anchor == key {
		r.Set(key, value)
		return
	}
	idx := r.indexOf(anchor)
	if idx < 0 {
		r.Set(key, value)
		return
	}
	r.keys = append(r.keys, "")
	copy(r.keys[idx+1:], r.keys[idx:])
	r.keys[idx] = key
	r.values[key] = value
}

// Delete removes key and returns the value it held.
func (r *Record) Delete(key string) (Value, bool) {
	v, ok := r.values[key]
	if !ok {
		return Value{}, false
	}
	delete(r.values, key)
	if idx := r.indexOf(key); idx >= 0 {
		r.keys = append(r.keys[:idx], r.keys[idx+1:]...)
	}
	return v, true
}

// Each walks the record in key order.
func (r *Record) Each(fn func(key string, value Value)) {
	if r == nil {
		return
	}
	for _, key := range r.keys {
		fn(key, r.values[key])
	}
}

// Clone deep-copies the record.
func (r *Record) Clone() *Record {
	out := NewRecord()
	if r == nil {
		return out
	}
	for _, key := range r.keys {
		out.Set(key, r.values[key].Clone())
	}
	return out
}

// Equal compares two records including key order.
func (r *Record) Equal(other *Record) bool {
	if r.Len() != other.Len() {
		return false
	}
	for i, key := range r.keys {
		if other.keys[i] != key {
			return false
		}
		if !r.values[key].Equal(other.values[key]) {
			return false
		}
	}
	return true
}

// Lookup resolves a dotted path such as "originator.name".
func (r *Record) Lookup(path string) (Value, bool) {
	parts := strings.Split(path, ".")
	current := r
	for i, part := range parts {
		v, ok := current.Get(part)
		if !ok {
			return Value{}, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if v.Kind() != KindObject {
			return Value{}, false
		}
		current = v.Record()
	}
	return Value{}, false
}

// SetPath stores value at a dotted path, creating intermediate objects.
// A non-object found along the path is replaced.
func (r *Record) SetPath(path string, value Value) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		r.Set(head, value)
		return
	}
	child, ok := r.Get(head)
	if !ok || child.Kind() != KindObject {
		child = Object(NewRecord())
		r.Set(head, child)
	}
	child.Record().SetPath(rest, value)
}

// Remove deletes the value at a dotted path. Parent objects left empty by
// the removal are removed as well.
func (r *Record) Remove(path string) bool {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		_, ok := r.Delete(head)
		return ok
	}
	v, ok := r.Get(head)
	if !ok || v.Kind() != KindObject {
		return false
	}
	if !v.Record().Remove(rest) {
		return false
	}
	if v.Record().Len() == 0 {
		r.Delete(head)
	}
	return true
}

// ToMap converts the record into plain Go values for encoders that do not
// need key order.
func (r *Record) ToMap() map[string]any {
	out := make(map[string]any, r.Len())
	r.Each(func(key string, value Value) {
		out[key] = toAny(value)
	})
	return out
}

func toAny(v Value) any {
	switch v.Kind() {
	case KindScalar:
		return v.Raw()
	case KindSequence:
		items := make([]any, len(v.Items()))
		for i, item := range v.Items() {
			items[i] = toAny(item)
		}
		return items
	case KindObject:
		return v.Record().ToMap()
	default:
		return nil
	}
}

// MarshalJSON encodes the record preserving key order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r != nil {
		for i, key := range r.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return nil, err
			}
			buf.Write(encodedKey)
			buf.WriteByte(':')
			encoded, err := r.values[key].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(encoded)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the record.
func (r *Record) UnmarshalJSON(data []byte) error {
	parsed, err := ParseRecord(data)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

func (r *Record) indexOf(key string) int {
	for i, k := range r.keys {
		if k == key {
			return i
		}
	}
	return -1
}
