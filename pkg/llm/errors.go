package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed model call. The stage runner retries only
// Transient and Timeout errors.
type ErrorKind string

const (
	// ErrorKindTransient covers network hiccups and HTTP 429/5xx responses.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindPermanent covers non-retryable upstream rejections:
	// 4xx other than 429, bad credentials, content policy.
	ErrorKindPermanent ErrorKind = "permanent"
	// ErrorKindTimeout means the per-task deadline expired.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindCanceled means the run was cancelled before the call finished.
	ErrorKindCanceled ErrorKind = "canceled"
)

// Error is a classified model-call failure.
type Error struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("model %s: %s: %v", e.Model, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and the model it came from.
func NewError(kind ErrorKind, model string, err error) *Error {
	return &Error{Kind: kind, Model: model, Err: err}
}

// KindOf extracts the classification from err.
// Context errors map to timeout/canceled; anything unclassified is treated
// as transient so the retry policy gets a chance at it.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrorKindCanceled
	default:
		return ErrorKindTransient
	}
}

// Retryable reports whether the stage runner may retry an error of this kind.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTransient || k == ErrorKindTimeout
}
