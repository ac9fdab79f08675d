package status

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
)

// RecordVersion is bumped whenever the serialized layout changes shape.
const RecordVersion = 1

// Attempt is one communication attempt, raw payloads included. Attempts are
// append-only: an audit trail that loses entries is worse than none.
type Attempt struct {
	At        time.Time `json:"at"`
	Operation string    `json:"operation"`
	Request   []byte    `json:"request,omitempty"`
	Response  []byte    `json:"response,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// TransmissionRecord is the durable state of one document's journey. The
// caller persists it between calls; this package only appends and advances.
type TransmissionRecord struct {
	Version     int       `json:"version"`
	ControlCode string    `json:"controlCode"`
	Status      Status    `json:"status"`
	// AlreadyCancelled marks an accepted document the authority reports as
	// cancelled through some other channel.
	AlreadyCancelled bool `json:"alreadyCancelled,omitempty"`
	// BatchID is the dProtConsLote handle returned by a batch submission.
	BatchID string `json:"batchId,omitempty"`
	// IssuedAt anchors the cancellation window.
	IssuedAt   time.Time `json:"issuedAt"`
	AcceptedAt time.Time `json:"acceptedAt,omitzero"`
	Attempts   []Attempt `json:"attempts"`
}

func NewRecord(controlCode string, issuedAt time.Time) *TransmissionRecord {
	return &TransmissionRecord{
		Version:     RecordVersion,
		ControlCode: controlCode,
		Status:      Pending,
		IssuedAt:    issuedAt,
	}
}

func (r *TransmissionRecord) addAttempt(a Attempt) {
	r.Attempts = append(r.Attempts, a)
}

// LastAttempt returns the most recent attempt, or nil before any call.
func (r *TransmissionRecord) LastAttempt() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// Marshal serializes the record for persistence.
func (r *TransmissionRecord) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalRecord restores a persisted record, refusing layouts newer than
// this package understands.
func UnmarshalRecord(data []byte) (*TransmissionRecord, error) {
	var r TransmissionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode transmission record")
	}
	if r.Version > RecordVersion {
		return nil, errors.Errorf("record version %d is newer than supported %d", r.Version, RecordVersion)
	}
	if r.Version == 0 {
		return nil, errors.New("record has no version")
	}
	return &r, nil
}
