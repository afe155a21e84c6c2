package schema

import (
	"fmt"

	"evsink/internal/coltype"
)

// ParseError wraps a YAML syntax or structure error in the schema file.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid schema document: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// TableNotFoundError reports an app referencing a table that is not
// declared in the schema. The first dangling reference fails the whole
// load; there is no partial schema.
type TableNotFoundError struct {
	AppID string
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("app %s refers to undefined table %s", e.AppID, e.Table)
}

// ColumnTypeError reports a header-sourced column declared with a type
// other than String.
type ColumnTypeError struct {
	Table  string
	Column string
	Actual coltype.Type
}

func (e *ColumnTypeError) Error() string {
	return fmt.Sprintf("table %q column %q: header-sourced columns must be string, not %s",
		e.Table, e.Column, e.Actual)
}

// ColumnError reports any other invalid column declaration.
type ColumnError struct {
	Table  string
	Column string
	Reason string
}

func (e *ColumnError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("table %q: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("table %q column %q: %s", e.Table, e.Column, e.Reason)
}
