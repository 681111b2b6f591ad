package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	ErrStructural    ErrorKind = "structural_schema"
	ErrValidation    ErrorKind = "field_validation"
	ErrUniqueness    ErrorKind = "uniqueness_conflict"
	ErrDefault       ErrorKind = "default_resolution"
	ErrSchema        ErrorKind = "schema"
	ErrQueryParse    ErrorKind = "query_parse"
	ErrQueryRejected ErrorKind = "query_rejected"
	ErrNotFound      ErrorKind = "not_found"
	ErrSQL           ErrorKind = "sql"
	ErrIO            ErrorKind = "io"
)

// Issue codes attached to field-level failures.
const (
	CodeRequired      = "required"
	CodeInvalidType   = "invalid_type"
	CodeTooShort      = "too_short"
	CodeTooLong       = "too_long"
	CodeTooSmall      = "too_small"
	CodeTooBig        = "too_big"
	CodeInvalidOption = "invalid_option"
	CodeCardinality   = "cardinality"
	CodeCustom        = "custom"
	CodeUniqueness    = "uniqueness"
	CodeDefaultFailed = "default_failed"
)

// Issue is a single failure attributed to a logical field path such as
// "array.0.text".
type Issue struct {
	Path    string
	Code    string
	Message string
}

// Issues collects independent failures across a document.
type Issues []Issue

func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	parts := make([]string, 0, len(iss))
	for _, it := range iss {
		parts = append(parts, fmt.Sprintf("%s at %s", it.Code, it.Path))
	}
	return strings.Join(parts, "; ")
}

// Paths returns the distinct issue paths in report order.
func (iss Issues) Paths() []string {
	seen := make(map[string]bool, len(iss))
	var out []string
	for _, it := range iss {
		if seen[it.Path] {
			continue
		}
		seen[it.Path] = true
		out = append(out, it.Path)
	}
	return out
}

type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Cause   error
	Issues  Issues
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Issues) > 0 {
		return e.Message
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Field != "" {
		base = fmt.Sprintf("%s (field=%s)", base, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Structural reports that the schema cannot interpret the input or query at
// the given path. It is never retried.
func Structural(path, msg string) *Error {
	return &Error{Kind: ErrStructural, Message: msg, Field: path}
}

func SchemaError(msg string) *Error {
	return &Error{Kind: ErrSchema, Message: msg}
}

func QueryParseError(msg string) *Error {
	return &Error{Kind: ErrQueryParse, Message: msg}
}

func QueryRejectedError(msg string) *Error {
	return &Error{Kind: ErrQueryRejected, Message: msg}
}

func NotFoundError(collection, id string) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("document not found: %s/%s", collection, id)}
}

// Invalid aggregates field issues into one failure. The kind is uniqueness or
// default resolution only when every issue has that origin.
func Invalid(issues Issues) *Error {
	kind := ErrValidation
	switch {
	case allCode(issues, CodeUniqueness):
		kind = ErrUniqueness
	case allCode(issues, CodeDefaultFailed):
		kind = ErrDefault
	}
	paths := issues.Paths()
	msg := "The following field is invalid: " + strings.Join(paths, ", ")
	if len(paths) > 1 {
		msg = "The following fields are invalid: " + strings.Join(paths, ", ")
	}
	e := &Error{Kind: kind, Message: msg, Issues: issues}
	if len(paths) > 0 {
		e.Field = paths[0]
	}
	return e
}

func allCode(issues Issues, code string) bool {
	if len(issues) == 0 {
		return false
	}
	for _, it := range issues {
		if it.Code != code {
			return false
		}
	}
	return true
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// AsIssues extracts the issues carried by an aggregated failure.
func AsIssues(err error) (Issues, bool) {
	var e *Error
	if stderrors.As(err, &e) && len(e.Issues) > 0 {
		return e.Issues, true
	}
	var iss Issues
	if stderrors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}
