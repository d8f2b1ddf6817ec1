package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind tags the shape held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindScalar
	KindSequence
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Value is a tagged union over the shapes found in clearinghouse payloads.
// Scalars hold a string, bool or json.Number so numeric text survives a
// round trip unchanged.
type Value struct {
	kind   Kind
	scalar any
	seq    []Value
	obj    *Record
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps a string scalar.
func String(s string) Value { return Value{kind: KindScalar, scalar: s} }

// Bool wraps a boolean scalar.
func Bool(b bool) Value { return Value{kind: KindScalar, scalar: b} }

// Int wraps an integer scalar.
func Int(i int64) Value {
	return Value{kind: KindScalar, scalar: json.Number(strconv.FormatInt(i, 10))}
}

// Number wraps a JSON number literal.
func Number(n json.Number) Value { return Value{kind: KindScalar, scalar: n} }

// Sequence wraps a list of values.
func Sequence(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, seq: items}
}

// Object wraps a record.
func Object(r *Record) Value {
	if r == nil {
		r = NewRecord()
	}
	return Value{kind: KindObject, obj: r}
}

// Kind reports the shape of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Items returns the elements of a sequence, or nil.
func (v Value) Items() []Value { return v.seq }

// Record returns the object payload, or nil when the value is not an object.
func (v Value) Record() *Record { return v.obj }

// Raw returns the underlying scalar (string, bool or json.Number).
func (v Value) Raw() any { return v.scalar }

// IsBlank reports null values, empty strings, empty sequences and empty objects.
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindScalar:
		s, ok := v.scalar.(string)
		return ok && strings.TrimSpace(s) == ""
	case KindSequence:
		return len(v.seq) == 0
	case KindObject:
		return v.obj == nil || v.obj.Len() == 0
	}
	return true
}

// Text renders a scalar the way it appears in a tabular cell. Null renders
// as the empty string; sequences and objects render as JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindScalar:
		switch s := v.scalar.(type) {
		case string:
			return s
		case bool:
			if s {
				return "true"
			}
			return "false"
		case json.Number:
			return s.String()
		default:
			return fmt.Sprintf("%v", s)
		}
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// Int64 interprets the value as an integer identifier. Strings are trimmed
// and parsed; floats with no fractional part are accepted.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindScalar {
		return 0, false
	}
	var raw string
	switch s := v.scalar.(type) {
	case json.Number:
		raw = s.String()
	case string:
		raw = strings.TrimSpace(s)
	default:
		return 0, false
	}
	if raw == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// Clone deep-copies the value.
func (v Value) Clone() Value {
	switch v.kind {
	case KindSequence:
		items := make([]Value, len(v.seq))
		for i, item := range v.seq {
			items[i] = item.Clone()
		}
		return Value{kind: KindSequence, seq: items}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	default:
		return v
	}
}

// Equal compares two values structurally, including key order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindScalar:
		return v.Text() == other.Text() && fmt.Sprintf("%T", v.scalar) == fmt.Sprintf("%T", other.scalar)
	case KindSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(other.obj)
	}
	return false
}

// MarshalJSON encodes the value, preserving object key order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindScalar:
		if n, ok := v.scalar.(json.Number); ok {
			return []byte(n.String()), nil
		}
		return json.Marshal(v.scalar)
	case KindSequence:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			encoded, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(encoded)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		return v.obj.MarshalJSON()
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes any JSON document into the value, keeping object
// key order and numeric literals.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	decoded, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// FromAny converts a generic Go value (as produced by encoding/json or a
// YAML decoder) into a Value. Map keys are emitted in sorted order since Go
// maps carry no order; use JSON decoding when order matters.
func FromAny(in any) Value {
	switch typed := in.(type) {
	case nil:
		return Null()
	case Value:
		return typed
	case string:
		return String(typed)
	case bool:
		return Bool(typed)
	case json.Number:
		return Number(typed)
	case int:
		return Int(int64(typed))
	case int64:
		return Int(typed)
	case float64:
		return Number(json.Number(strconv.FormatFloat(typed, 'f', -1, 64)))
	case []any:
		items := make([]Value, len(typed))
		for i, item := range typed {
			items[i] = FromAny(item)
		}
		return Sequence(items...)
	case []string:
		items := make([]Value, len(typed))
		for i, item := range typed {
			items[i] = String(item)
		}
		return Sequence(items...)
	case map[string]any:
		return Object(RecordFromMap(typed))
	case *Record:
		return Object(typed)
	default:
		return String(fmt.Sprintf("%v", typed))
	}
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return Value{}, fmt.Errorf("unexpected end of JSON input")
		}
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			rec := NewRecord()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				rec.Set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Object(rec), nil
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Sequence(items...), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %v", t)
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}
