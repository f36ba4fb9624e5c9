package common

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// FieldError describes one invalid configuration or input field.
type FieldError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// Validator provides validation utilities
type Validator struct {
	errors []FieldError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]FieldError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidationRule represents a validation rule function
type ValidationRule func(fieldName string, value interface{}) *FieldError

// Required validates that a string field is not empty
func Required() ValidationRule {
	return func(fieldName string, value interface{}) *FieldError {
		if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
			return &FieldError{Field: fieldName, Value: value, Message: "is required"}
		}
		return nil
	}
}

// OneOf validates that a string field holds one of the allowed values
func OneOf(allowed ...string) ValidationRule {
	return func(fieldName string, value interface{}) *FieldError {
		str, ok := value.(string)
		if !ok || slices.Contains(allowed, str) {
			return nil
		}
		return &FieldError{
			Field:   fieldName,
			Value:   value,
			Message: "must be one of " + strings.Join(allowed, ", "),
		}
	}
}

// Positive validates that a numeric field is greater than zero
func Positive() ValidationRule {
	return func(fieldName string, value interface{}) *FieldError {
		var ok bool
		switch n := value.(type) {
		case int:
			ok = n > 0
		case int32:
			ok = n > 0
		case int64:
			ok = n > 0
		case float32:
			ok = n > 0
		default:
			return nil
		}
		if !ok {
			return &FieldError{Field: fieldName, Value: value, Message: "must be positive"}
		}
		return nil
	}
}

// AbsoluteURL validates that a non-empty string field parses as an absolute http(s) URL
func AbsoluteURL() ValidationRule {
	return func(fieldName string, value interface{}) *FieldError {
		str, ok := value.(string)
		if !ok || str == "" {
			return nil
		}
		u, err := url.Parse(str)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &FieldError{Field: fieldName, Value: value, Message: "must be an absolute http(s) URL"}
		}
		return nil
	}
}
