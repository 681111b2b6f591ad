package fieldstore

import fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"

// Re-export error types and functions so callers need a single import
type Error = fserrors.Error
type ErrorKind = fserrors.ErrorKind
type Issue = fserrors.Issue
type Issues = fserrors.Issues

const (
	ErrStructural    = fserrors.ErrStructural
	ErrValidation    = fserrors.ErrValidation
	ErrUniqueness    = fserrors.ErrUniqueness
	ErrDefault       = fserrors.ErrDefault
	ErrSchema        = fserrors.ErrSchema
	ErrQueryParse    = fserrors.ErrQueryParse
	ErrQueryRejected = fserrors.ErrQueryRejected
	ErrNotFound      = fserrors.ErrNotFound
	ErrSQL           = fserrors.ErrSQL
	ErrIO            = fserrors.ErrIO
)

func IsKind(err error, kind ErrorKind) bool { return fserrors.IsKind(err, kind) }

func AsIssues(err error) (Issues, bool) { return fserrors.AsIssues(err) }
