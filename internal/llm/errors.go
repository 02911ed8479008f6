package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies why a provider call failed. The router uses the kind
// to decide between trying the next provider and failing fast.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureAuthFailed  FailureKind = "auth_failed"
	FailureTimeout     FailureKind = "timeout"
	FailureTransient   FailureKind = "transient"
	FailureUnparseable FailureKind = "unparseable_output"
)

// Retryable reports whether a failure of this kind should trigger failover to
// the next provider. Auth failures still allow the next provider but disable
// the failing one; unparseable output never fails over because a different
// backend would not honor the same prompt contract any more reliably.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureRateLimited, FailureTimeout, FailureTransient:
		return true
	}
	return false
}

// CallError is a classified failure from one provider attempt.
type CallError struct {
	Kind     FailureKind
	Provider string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every enabled provider failed.
type ExhaustedError struct {
	Attempts []*CallError
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, a.Error())
	}
	return fmt.Sprintf("all providers exhausted after %d attempts: %s",
		len(e.Attempts), strings.Join(reasons, "; "))
}

// ErrNoProviders is returned when the router has no enabled providers at all.
var ErrNoProviders = errors.New("no enabled llm providers")

// Classify maps a raw provider error to a FailureKind. Provider SDKs do not
// expose a shared error taxonomy, so this falls back to matching the status
// codes and phrases the upstream APIs actually return.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	msg := strings.ToLower(err.Error())

	switch {
	case hasAny(msg, "429", "rate limit", "too many requests", "quota", "resource exhausted"):
		return FailureRateLimited
	case hasAny(msg, "401", "403", "unauthorized", "permission denied", "invalid api key", "api key not valid", "forbidden"):
		return FailureAuthFailed
	case hasAny(msg, "deadline exceeded", "timeout", "timed out"):
		return FailureTimeout
	}
	return FailureTransient
}

func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
