// ABOUTME: Error taxonomy for the sync engine and its transports
// ABOUTME: Sentinels are wrapped with %w and classified with errors.Is

package model

import (
	"errors"
	"fmt"
)

// Taxonomy sentinels.
var (
	ErrTransient   = errors.New("transient failure")
	ErrValidation  = errors.New("validation failed")
	ErrAuthExpired = errors.New("session expired")
	ErrConflict    = errors.New("conflict or not found")
)

// Validation failures raised by the composer.
var (
	ErrSendPending  = fmt.Errorf("%w: a send is already pending", ErrValidation)
	ErrEmptyMessage = fmt.Errorf("%w: message has no content or attachments", ErrValidation)
)

// Kind names a taxonomy bucket.
type Kind string

const (
	KindNone        Kind = ""
	KindTransient   Kind = "transient"
	KindValidation  Kind = "validation"
	KindAuthExpired Kind = "auth_expired"
	KindConflict    Kind = "conflict"
)

// Classify maps err onto the taxonomy. Errors that wrap none of the sentinels
// are treated as transient.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuthExpired):
		return KindAuthExpired
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindTransient
	}
}

// Retryable reports whether the user may retry the action that produced err.
func Retryable(err error) bool {
	return Classify(err) == KindTransient
}
