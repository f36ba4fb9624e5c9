package record

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FlatRecordSchema accepts an object whose values are all primitives.
var FlatRecordSchema = map[string]any{
	"type": "object",
	"additionalProperties": map[string]any{
		"type": []string{"string", "number", "boolean", "null"},
	},
}

var flatSchema = mustCompile(FlatRecordSchema)

// ValidateFlat checks r against FlatRecordSchema.
func ValidateFlat(r *Record) error {
	b, err := r.MarshalJSON()
	if err != nil {
		return err
	}
	return validate(flatSchema, b)
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	schema, err := compile(schemaMap)
	if err != nil {
		return err
	}
	return validate(schema, data)
}

func compile(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func mustCompile(schemaMap map[string]any) *jsonschema.Schema {
	s, err := compile(schemaMap)
	if err != nil {
		panic(err)
	}
	return s
}

func validate(schema *jsonschema.Schema, data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
