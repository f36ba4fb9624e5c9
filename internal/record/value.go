// Package record holds the value model for structured documents: an ordered mapping of field
// names to tagged-union values, plus the flat check and flattening used before persistence.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind tags a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a JSON value: a primitive, an object or an array.
type Value struct {
	kind Kind
	str  string // string payload or the number literal
	b    bool
	obj  *Record
	arr  []Value
}

func Null() Value                { return Value{kind: KindNull} }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Object(r *Record) Value     { return Value{kind: KindObject, obj: r} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Number keeps the literal as written so values round-trip without float drift.
func Number(n json.Number) Value { return Value{kind: KindNumber, str: n.String()} }

func (v Value) Kind() Kind { return v.kind }

// IsPrimitive reports whether v fits in a single scalar column.
func (v Value) IsPrimitive() bool {
	return v.kind != KindObject && v.kind != KindArray
}

// Object returns the nested record, or nil when v is not an object.
func (v Value) Object() *Record { return v.obj }

// Array returns the items, or nil when v is not an array.
func (v Value) Array() []Value { return v.arr }

// Text renders a primitive as column text. ok is false for null and non-primitives.
func (v Value) Text() (s string, ok bool) {
	switch v.kind {
	case KindString, KindNumber:
		return v.str, true
	case KindBool:
		return strconv.FormatBool(v.b), true
	default:
		return "", false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.str), nil
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindObject:
		return v.obj.MarshalJSON()
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("record: cannot marshal %s", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	got, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = got
	return nil
}
