package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_TextRoundTrip(t *testing.T) {
	for _, s := range []Status{Pending, Sent, Accepted, Rejected, NotFound, Cancelled} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back Status
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	var s Status
	assert.Error(t, s.UnmarshalText([]byte("SHIPPED")))
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, Accepted.Terminal())
	assert.True(t, Cancelled.Terminal())
	assert.False(t, Pending.Terminal())
	assert.False(t, Sent.Terminal())
	assert.False(t, Rejected.Terminal())
	assert.False(t, NotFound.Terminal())
}

func TestRecord_MarshalRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 14, 10, 30, 0, 0, time.UTC)
	rec := NewRecord(testCDC, at)
	rec.Status = Accepted
	rec.AcceptedAt = at.Add(time.Minute)
	rec.BatchID = "4711"
	rec.addAttempt(Attempt{
		At: at, Operation: "submit",
		Request: []byte("<env/>"), Response: []byte("<resp/>"),
		Code: "0260", Message: "Autorizado el DE",
	})

	data, err := rec.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":1`)
	assert.Contains(t, string(data), `"status":"ACCEPTED"`)

	back, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec.ControlCode, back.ControlCode)
	assert.Equal(t, Accepted, back.Status)
	assert.Equal(t, "4711", back.BatchID)
	require.Len(t, back.Attempts, 1)
	assert.Equal(t, "0260", back.Attempts[0].Code)
	assert.Equal(t, []byte("<env/>"), back.Attempts[0].Request)
}

func TestUnmarshalRecord_VersionGuard(t *testing.T) {
	_, err := UnmarshalRecord([]byte(`{"version":99,"controlCode":"x","status":"SENT"}`))
	assert.Error(t, err)

	_, err = UnmarshalRecord([]byte(`{"controlCode":"x","status":"SENT"}`))
	assert.Error(t, err)

	_, err = UnmarshalRecord([]byte(`not json`))
	assert.Error(t, err)
}

func TestRecord_LastAttempt(t *testing.T) {
	rec := NewRecord(testCDC, time.Now())
	assert.Nil(t, rec.LastAttempt())

	rec.addAttempt(Attempt{Operation: "submit"})
	rec.addAttempt(Attempt{Operation: "consult"})
	assert.Equal(t, "consult", rec.LastAttempt().Operation)
}
