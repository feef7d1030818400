package weirdling

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("weirdling job not found")
	ErrInvalidTransition = errors.New("weirdling job is not running")
)

// Kind classifies the errors Generate reports to callers.
type Kind string

const (
	KindRateLimited      Kind = "rate_limited"
	KindInvalidRequest   Kind = "invalid_request"
	KindGenerationFailed Kind = "generation_failed"
	KindInProgress       Kind = "in_progress"
)

// Sentinels for errors.Is.
var (
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrGenerationFailed = &Error{Kind: KindGenerationFailed}
	ErrInProgress       = &Error{Kind: KindInProgress}
)

type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is set for KindRateLimited, in whole seconds.
	RetryAfter int
	// JobID is set for KindGenerationFailed; the failed job stays stored.
	JobID string

	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return string(e.Kind) + ": " + e.Message
	case e.Err != nil:
		return string(e.Kind) + ": " + e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ErrRateLimited) works for any instance.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func rateLimited(retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("too many generation requests, retry in %ds", retryAfter),
		RetryAfter: retryAfter,
	}
}

func invalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

func generationFailed(jobID string, err error) *Error {
	return &Error{Kind: KindGenerationFailed, Message: err.Error(), JobID: jobID, Err: err}
}
