package orm

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeInitialization    Code = "INITIALIZATION_ERROR"
	CodeModelNotFound     Code = "MODEL_NOT_FOUND"
	CodeModelDefinition   Code = "MODEL_DEFINITION_ERROR"
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeConstraint        Code = "CONSTRAINT_ERROR"
	CodeCreate            Code = "CREATE_ERROR"
	CodeUpdate            Code = "UPDATE_ERROR"
	CodeDelete            Code = "DELETE_ERROR"
	CodeQuery             Code = "QUERY_ERROR"
	CodeRawQuery          Code = "RAW_QUERY_ERROR"
	CodeMigration         Code = "MIGRATION_ERROR"
	CodeTransaction       Code = "TRANSACTION_ERROR"
	CodeNestedTransaction Code = "NESTED_TRANSACTION"
	CodeNotFound          Code = "NOT_FOUND"
	CodeBackup            Code = "BACKUP_ERROR"
	CodeVacuum            Code = "VACUUM_ERROR"
)

// Error is the error type returned by every DB operation. Err holds the
// underlying driver failure, if any.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so callers can test
// errors.Is(err, orm.ErrConstraint).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInitialization    = &Error{Code: CodeInitialization, Message: "initialization failed"}
	ErrModelNotFound     = &Error{Code: CodeModelNotFound, Message: "model not found"}
	ErrModelDefinition   = &Error{Code: CodeModelDefinition, Message: "model definition failed"}
	ErrValidation        = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrConstraint        = &Error{Code: CodeConstraint, Message: "constraint violation"}
	ErrCreate            = &Error{Code: CodeCreate, Message: "create failed"}
	ErrUpdate            = &Error{Code: CodeUpdate, Message: "update failed"}
	ErrDelete            = &Error{Code: CodeDelete, Message: "delete failed"}
	ErrQuery             = &Error{Code: CodeQuery, Message: "query failed"}
	ErrRawQuery          = &Error{Code: CodeRawQuery, Message: "raw query failed"}
	ErrMigration         = &Error{Code: CodeMigration, Message: "migration failed"}
	ErrTransaction       = &Error{Code: CodeTransaction, Message: "transaction failed"}
	ErrNestedTransaction = &Error{Code: CodeNestedTransaction, Message: "nested transactions are not supported"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "record not found"}
	ErrBackup            = &Error{Code: CodeBackup, Message: "backup failed"}
	ErrVacuum            = &Error{Code: CodeVacuum, Message: "vacuum failed"}
)

func newError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func modelNotFound(name string) *Error {
	return newError(CodeModelNotFound, nil, "model %q is not defined", name)
}

// FieldError is one violated field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Table  string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Message
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Table, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == CodeValidation
}

// Code returns CodeValidation; it lets callers treat both error types alike.
func (e *ValidationError) Code() Code { return CodeValidation }

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ErrorCode extracts the code of an orm error, or "" for foreign errors.
func ErrorCode(err error) Code {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return CodeValidation
	}
	return ""
}

// isConstraint reports whether a driver error is a UNIQUE, NOT NULL, CHECK
// or FOREIGN KEY violation.
func isConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint failed")
}

// classify wraps a storage failure as a constraint error or as the
// operation's generic error.
func classify(code Code, err error, format string, args ...any) error {
	if isConstraint(err) {
		return newError(CodeConstraint, err, format, args...)
	}
	return newError(code, err, format, args...)
}
