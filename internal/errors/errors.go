// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientData = errors.New("insufficient data for calculation")
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrEmptySeries      = errors.New("series is empty")
	ErrNonMonotonic     = errors.New("timestamps are not monotonic non-decreasing")
	ErrMalformedBar     = errors.New("malformed bar")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrSymbolNotFound   = errors.New("symbol not found")
	ErrDataNotFound     = errors.New("data not found")
)

// ConfigError reports an invalid parameter passed to an indicator or held in
// the engine configuration. Indicator functions panic with it.
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error // optional, more specific cause
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap matches ErrConfigInvalid and, when set, the specific cause.
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfigInvalid, e.Err}
	}
	return []error{ErrConfigInvalid}
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// MustPositive panics with a ConfigError wrapping ErrInvalidPeriod when
// period is not positive.
func MustPositive(field string, period int) {
	if period <= 0 {
		err := NewConfigError(field, period, "must be a positive integer")
		err.Err = ErrInvalidPeriod
		panic(err)
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Index    int
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s@%d: %s: %v", e.DataType, e.Symbol, e.Index, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s@%d: %s", e.DataType, e.Symbol, e.Index, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol string, index int, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Index:    index,
		Message:  message,
		Err:      err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
