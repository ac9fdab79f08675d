package sifen

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoCredential   = errors.New("sifen: no signing credential configured")
	ErrWindowExpired  = errors.New("sifen: cancellation window of 48h expired")
	ErrNotCancellable = errors.New("sifen: document state does not allow cancellation")
)

// ValidationError collects every problem found while building a document,
// so a caller can show the complete checklist instead of the first failure.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document validation failed: %s", strings.Join(e.Errors, "; "))
}

// HasErrors reports whether the result blocks document construction.
// Warnings alone do not.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// CredentialError marks unusable signing material. Fatal for the attempt,
// never retried automatically.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential error: %s: %v", e.Reason, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TransportError is a network-level failure before any authority-side
// commitment: retryable by the caller without restriction.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AmbiguousOutcome is a timeout during a submit: the document may or may not
// have been received. The correct recovery is consult-then-resubmit, never a
// blind resubmit, so it is kept distinct from TransportError.
type AmbiguousOutcome struct {
	URL string
	Err error
}

func (e *AmbiguousOutcome) Error() string {
	return fmt.Sprintf("ambiguous outcome (timeout during submit to %s): %v", e.URL, e.Err)
}

func (e *AmbiguousOutcome) Unwrap() error { return e.Err }

// RemoteRejection carries the authority's response code and message verbatim.
type RemoteRejection struct {
	Code    string
	Message string
	Kind    RejectionKind
}

type RejectionKind int

const (
	// RejectionMalformed is a structural defect: resubmitting the identical
	// payload is pointless, escalate to the variant probe instead.
	RejectionMalformed RejectionKind = iota
	// RejectionNotFound means a consult did not find the id; re-submit is allowed.
	RejectionNotFound
	// RejectionBusinessRule covers everything else (duplicate CDC, expired
	// cancellation window on the remote side, etc).
	RejectionBusinessRule
)

func (e *RemoteRejection) Error() string {
	return fmt.Sprintf("rejected by authority: %s %s", e.Code, e.Message)
}
