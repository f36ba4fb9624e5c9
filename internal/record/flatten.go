package record

import (
	"fmt"
)

// FlatField is one column of a flattened record. A nil Text is stored as NULL.
type FlatField struct {
	Key  string
	Text *string
}

// Flat is a record whose values are all primitives rendered as column text.
type Flat struct {
	Fields []FlatField
}

func (f Flat) Keys() []string {
	keys := make([]string, len(f.Fields))
	for i, fld := range f.Fields {
		keys[i] = fld.Key
	}
	return keys
}

// IsFlat reports whether every value in r is a primitive.
func IsFlat(r *Record) bool {
	for _, f := range r.Fields() {
		if !f.Value.IsPrimitive() {
			return false
		}
	}
	return true
}

// NestedKeys lists the keys whose values are objects or arrays.
func NestedKeys(r *Record) []string {
	var keys []string
	for _, f := range r.Fields() {
		if !f.Value.IsPrimitive() {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// Flatten serializes every non-primitive value to its JSON text. Primitives keep their text
// form and null stays NULL. Flattening a flat record changes nothing but the representation.
func Flatten(r *Record) (Flat, error) {
	out := Flat{Fields: make([]FlatField, 0, r.Len())}
	for _, f := range r.Fields() {
		if f.Value.IsPrimitive() {
			if s, ok := f.Value.Text(); ok {
				out.Fields = append(out.Fields, FlatField{Key: f.Key, Text: &s})
			} else {
				out.Fields = append(out.Fields, FlatField{Key: f.Key})
			}
			continue
		}
		b, err := f.Value.MarshalJSON()
		if err != nil {
			return Flat{}, fmt.Errorf("flatten %q: %w", f.Key, err)
		}
		s := string(b)
		out.Fields = append(out.Fields, FlatField{Key: f.Key, Text: &s})
	}
	return out, nil
}
