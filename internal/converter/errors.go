package converter

import (
	"errors"
	"fmt"
)

// Row error codes
const (
	ErrCodeInsert    = "ERR_ROW_INSERT"
	ErrCodeTransform = "ERR_ROW_TRANSFORM"
)

var (
	// ErrIncompleteHeader is returned when a header has no declaration number.
	ErrIncompleteHeader = errors.New("header has no declaration number")

	// ErrNoRowsInserted is returned when every row of a batch failed.
	ErrNoRowsInserted = errors.New("no rows inserted")
)

// RowError is a failure isolated to one item of a batch
type RowError struct {
	Row     int    `json:"row"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Column  string `json:"column,omitempty"`
}

// Error implements the error interface
func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// FieldError is a field rule failure on one derived field
type FieldError struct {
	Field  string
	Action string
	Err    error
}

// Error implements the error interface
func (e *FieldError) Error() string {
	return fmt.Sprintf("failed to apply %s to field %s: %v", e.Action, e.Field, e.Err)
}

// Unwrap returns the action error
func (e *FieldError) Unwrap() error {
	return e.Err
}

// ErrorCollection keeps the first maxErrors row errors and counts the rest
type ErrorCollection struct {
	errors     []RowError
	maxErrors  int
	totalCount int
}

// NewErrorCollection creates a new ErrorCollection with a maximum error limit
func NewErrorCollection(maxErrors int) *ErrorCollection {
	if maxErrors <= 0 {
		maxErrors = 100
	}
	return &ErrorCollection{
		errors:    make([]RowError, 0),
		maxErrors: maxErrors,
	}
}

// Add adds an error to the collection
func (ec *ErrorCollection) Add(err RowError) {
	ec.totalCount++
	if len(ec.errors) < ec.maxErrors {
		ec.errors = append(ec.errors, err)
	}
}

// Errors returns the kept errors
func (ec *ErrorCollection) Errors() []RowError {
	return ec.errors
}

// Count returns the number of kept errors
func (ec *ErrorCollection) Count() int {
	return len(ec.errors)
}

// TotalCount returns the number of errors added, kept or not
func (ec *ErrorCollection) TotalCount() int {
	return ec.totalCount
}

// HasErrors reports whether any error was added
func (ec *ErrorCollection) HasErrors() bool {
	return ec.totalCount > 0
}

// IsTruncated reports whether errors were dropped
func (ec *ErrorCollection) IsTruncated() bool {
	return ec.totalCount > len(ec.errors)
}
