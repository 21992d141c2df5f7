package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDealExists is returned when attempting to create a deal that already exists.
	ErrDealExists = errors.New("deal already exists")
	// ErrInvalidRecord marks input that cannot be resolved to an identity (e.g. an unusable URL).
	ErrInvalidRecord = errors.New("invalid record")
	// ErrLookup marks a failed read of an existing deal.
	ErrLookup = errors.New("deal lookup failed")
	// ErrWrite marks a failed insert-or-update.
	ErrWrite = errors.New("deal write failed")
	// ErrInvariantViolation is returned for a batch whose post-run audit found a broken invariant.
	ErrInvariantViolation = errors.New("invariant violation")
)

// ErrorKind classifies per-item failures. None of them abort a batch.
type ErrorKind string

const (
	KindInput  ErrorKind = "input"
	KindLookup ErrorKind = "lookup"
	KindWrite  ErrorKind = "write"
)

// ItemError is the failure of a single record within a batch.
type ItemError struct {
	Kind ErrorKind
	Key  string
	URL  string
	Err  error
}

func (e *ItemError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s error for %s: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("%s error for %q: %v", e.Kind, e.URL, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Is lets errors.Is match an ItemError against the sentinel of its kind.
func (e *ItemError) Is(target error) bool {
	switch e.Kind {
	case KindInput:
		return target == ErrInvalidRecord
	case KindLookup:
		return target == ErrLookup
	case KindWrite:
		return target == ErrWrite
	}
	return false
}

// KindOf classifies an arbitrary error returned by a store call.
// Unclassified errors are treated as write failures.
func KindOf(err error) ErrorKind {
	var ie *ItemError
	switch {
	case errors.As(err, &ie):
		return ie.Kind
	case errors.Is(err, ErrInvalidRecord):
		return KindInput
	case errors.Is(err, ErrLookup):
		return KindLookup
	default:
		return KindWrite
	}
}
