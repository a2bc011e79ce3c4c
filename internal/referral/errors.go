package referral

import (
	"errors"

	"github.com/xao-fun/xao-go/internal/llm"
)

// Kind tags why a verification failed.
type Kind string

const (
	KindInput         Kind = "invalid_input"
	KindNetwork       Kind = "network"
	KindAuth          Kind = "auth"
	KindRateLimited   Kind = "rate_limited"
	KindUpstream      Kind = "upstream"
	KindParse         Kind = "parse"
	KindInvalidOutput Kind = "invalid_output"
)

// VerificationError is the only error Verify returns. The wrapped cause keeps
// the underlying message; Kind says which stage failed.
type VerificationError struct {
	Kind Kind
	Err  error
}

func (e *VerificationError) Error() string {
	return "verification failed: " + e.Err.Error()
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same request could succeed.
func (e *VerificationError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimited, KindUpstream:
		return true
	}
	return false
}

// KindOf returns the Kind carried by err, or "" if err is not a
// VerificationError.
func KindOf(err error) Kind {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return ""
}

// IsRetryable reports whether err is a retryable VerificationError.
func IsRetryable(err error) bool {
	var verr *VerificationError
	return errors.As(err, &verr) && verr.Retryable()
}

func newError(kind Kind, err error) *VerificationError {
	return &VerificationError{Kind: kind, Err: err}
}

// completionKind maps a model client failure onto a Kind.
func completionKind(err error) Kind {
	switch {
	case errors.Is(err, llm.ErrAuth):
		return KindAuth
	case errors.Is(err, llm.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, llm.ErrUpstream):
		return KindUpstream
	case errors.Is(err, llm.ErrEmptyResponse):
		return KindInvalidOutput
	default:
		// llm.ErrNetwork, context expiry, and failures from unknown clients.
		return KindNetwork
	}
}
