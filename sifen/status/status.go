// Package status tracks a document's lifecycle against the authority and
// interprets the response codes its endpoints return.
package status

import (
	"fmt"
	"strings"
)

// Status is the local view of a document's transmission state.
//
//	PENDING → SENT → {ACCEPTED, REJECTED, NOT_FOUND} → CANCELLED
//
// Only ACCEPTED documents can move to CANCELLED. REJECTED and NOT_FOUND can
// be re-submitted, which starts the cycle again on a rebuilt document.
type Status int

const (
	Pending Status = iota
	Sent
	Accepted
	Rejected
	NotFound
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Sent:
		return "SENT"
	case Accepted:
		return "ACCEPTED"
	case Rejected:
		return "REJECTED"
	case NotFound:
		return "NOT_FOUND"
	case Cancelled:
		return "CANCELLED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "PENDING":
		*s = Pending
	case "SENT":
		*s = Sent
	case "ACCEPTED":
		*s = Accepted
	case "REJECTED":
		*s = Rejected
	case "NOT_FOUND":
		*s = NotFound
	case "CANCELLED":
		*s = Cancelled
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Terminal reports whether no further submission is expected. NOT_FOUND and
// REJECTED are not terminal: both invite a corrected re-submission.
func (s Status) Terminal() bool {
	return s == Accepted || s == Cancelled
}

// Response codes the authority's endpoints are known to return.
const (
	CodeApproved        = "0260"
	CodeBatchReceived   = "0300"
	CodeBatchQueued     = "0301"
	CodeBatchProcessing = "0361"
	CodeMalformed       = "0160"
	CodeNotFound        = "0420"
	CodeNotFoundAlt     = "0422"
	CodeEventRegistered = "0600"
)
