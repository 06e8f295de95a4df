package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Kind identifies which variant of a JSON Value is populated.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Member is one key/value pair of a JSON object.
type Member struct {
	Key   string
	Value Value
}

// Value is a tagged union over the JSON data model. Unlike encoding/json's
// any-typed decoding it can carry non-finite numbers (NaN, ±Inf), which the
// upstream feeds emit and Sanitize removes.
//
// The zero Value is null.
type Value struct {
	kind    Kind
	b       bool
	num     float64
	str     string
	items   []Value
	members []Member
}

// Null returns the JSON null value.
func Null() Value { return Value{} }

// Bool returns a JSON boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a JSON number. Non-finite inputs are allowed.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a JSON string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array returns a JSON array holding items.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// Object returns a JSON object with members in the given order.
func Object(members ...Member) Value {
	if members == nil {
		members = []Member{}
	}
	return Value{kind: KindObject, members: members}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNonFinite reports whether v is a number that is NaN or infinite.
func (v Value) IsNonFinite() bool {
	return v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0))
}

// Float returns the number held by v and whether v is a number.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Str returns the string held by v and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Boolean returns the bool held by v and whether v is a bool.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Items returns the elements of an array, or nil for any other kind.
func (v Value) Items() []Value { return v.items }

// Members returns the members of an object, or nil for any other kind.
func (v Value) Members() []Member { return v.members }

// Len is the number of array elements or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	default:
		return 0
	}
}

// Get looks up an object member by key.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Equal reports deep equality. NaN compares equal to NaN so that decoded
// documents can be compared in tests.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if math.IsNaN(v.num) && math.IsNaN(o.num) {
			return true
		}
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.members) != len(o.members) {
			return false
		}
		for _, m := range v.members {
			ov, ok := o.Get(m.Key)
			if !ok || !m.Value.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON encodes v as standard JSON. Object member order is preserved.
// A non-finite number has no JSON representation and is written as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes data with the same leniency as Decode.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if v.IsNonFinite() {
			buf.WriteString("null")
			return nil
		}
		b, err := json.Marshal(v.num)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}
