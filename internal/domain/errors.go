package domain

import (
	"errors"
	"fmt"
)

// SourceErrorKind classifies why a source fetch failed.
type SourceErrorKind string

const (
	ErrKindUnauthorized      SourceErrorKind = "unauthorized"
	ErrKindRateLimited       SourceErrorKind = "rate_limited"
	ErrKindTimeout           SourceErrorKind = "timeout"
	ErrKindMalformedResponse SourceErrorKind = "malformed_response"
	ErrKindUnreachable       SourceErrorKind = "unreachable"
)

// SourceError is the typed failure every source client returns.
// Callers branch on Kind, never on the concrete client type.
type SourceError struct {
	Source string
	Kind   SourceErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewSourceError wraps err as a typed source failure.
func NewSourceError(source string, kind SourceErrorKind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}

// ErrAllSourcesUnavailable is returned by the aggregator when every
// configured source failed for a coin. It is fatal for that coin's run
// only; sibling coins are unaffected.
var ErrAllSourcesUnavailable = errors.New("all sources unavailable")

// ErrTemplateMissing indicates a prompt template was never seeded.
// This is a fatal misconfiguration, not a runtime degradation.
var ErrTemplateMissing = errors.New("template missing")

// AIGenerationError is the terminal failure of one summary composition,
// surfaced after the retry policy is exhausted (or immediately for
// non-transient provider errors).
type AIGenerationError struct {
	Reason    string
	Transient bool
	Err       error
}

func (e *AIGenerationError) Error() string {
	if e.Err == nil {
		return "ai generation failed: " + e.Reason
	}
	return fmt.Sprintf("ai generation failed: %s: %v", e.Reason, e.Err)
}

func (e *AIGenerationError) Unwrap() error { return e.Err }
