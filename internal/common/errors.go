package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Each maps to one HTTP status in HTTPStatus.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExtraction  = "EXTRACTION_ERROR"
	CodeStructuring = "STRUCTURING_ERROR"
	CodeShape       = "SHAPE_ERROR"
	CodePersistence = "PERSISTENCE_ERROR"
	CodeConfig      = "CONFIG_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
	// Details is returned to API callers next to Message.
	Details any
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrExtraction   = errors.New("extraction failed")
	ErrStructuring  = errors.New("structuring failed")
	ErrShape        = errors.New("record is not flat")
	ErrPersistence  = errors.New("database error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithDetails attaches caller-visible details and returns the same error.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func ValidationError(message string) *AppError {
	return NewAppError(CodeValidation, message, ErrInvalidInput)
}

func ExtractionError(message string, cause error) *AppError {
	return NewAppError(CodeExtraction, message, errors.Join(ErrExtraction, cause))
}

func StructuringError(message string, details any) *AppError {
	return NewAppError(CodeStructuring, message, ErrStructuring).WithDetails(details)
}

func ShapeError(message string, details any) *AppError {
	return NewAppError(CodeShape, message, ErrShape).WithDetails(details)
}

func PersistenceError(message string, cause error) *AppError {
	return NewAppError(CodePersistence, message, errors.Join(ErrPersistence, cause))
}

// HTTPStatus maps an error to the status code returned by the API.
func HTTPStatus(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
