package journal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRecord_RoundTrip(t *testing.T) {
	e := &Entry{
		ID:          uuid.New().String(),
		State:       StateInFlight,
		Attempts:    2,
		EnqueueTime: time.Now().UTC().Truncate(time.Nanosecond),
		Method:      "POST",
		Path:        "/api/x",
		Headers:     map[string]string{"Authorization": "Bearer xyz", "X-Trace-ID": "abc"},
		Body:        []byte(`{"hello":"world"}`),
	}

	rec, err := EncodeRecord(e)
	require.NoError(t, err)

	got, next, ok := DecodeRecordAt(rec, 0)
	require.True(t, ok)
	assert.Equal(t, len(rec), next)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.State, got.State)
	assert.Equal(t, e.Attempts, got.Attempts)
	assert.Equal(t, e.EnqueueTime.UnixNano(), got.EnqueueTime.UnixNano())
	assert.Equal(t, e.Method, got.Method)
	assert.Equal(t, e.Path, got.Path)
	assert.Equal(t, e.Headers, got.Headers)
	assert.Equal(t, e.Body, got.Body)
}

func TestDecodeRecordAt_TruncatesAtCorruption(t *testing.T) {
	e1 := &Entry{ID: uuid.New().String(), State: StatePending, EnqueueTime: time.Now().UTC(), Method: "GET", Path: "/a"}
	e2 := &Entry{ID: uuid.New().String(), State: StatePending, EnqueueTime: time.Now().UTC(), Method: "GET", Path: "/b"}

	rec1, err := EncodeRecord(e1)
	require.NoError(t, err)
	rec2, err := EncodeRecord(e2)
	require.NoError(t, err)

	buf := append(append([]byte{}, rec1...), rec2...)
	// Corrupt a byte inside the second record's payload.
	buf[len(rec1)+10] ^= 0xFF

	got, next, ok := DecodeRecordAt(buf, 0)
	require.True(t, ok)
	assert.Equal(t, e1.ID, got.ID)
	assert.Equal(t, len(rec1), next)

	_, _, ok = DecodeRecordAt(buf, next)
	assert.False(t, ok, "corrupted second record must fail to decode")
}

func TestDecodeRecordAt_PartialTailRecord(t *testing.T) {
	e := &Entry{ID: uuid.New().String(), State: StatePending, EnqueueTime: time.Now().UTC(), Method: "GET", Path: "/a"}
	rec, err := EncodeRecord(e)
	require.NoError(t, err)

	// Simulate a torn write: only the first half of the record landed.
	truncated := rec[:len(rec)/2]
	_, _, ok := DecodeRecordAt(truncated, 0)
	assert.False(t, ok)
}
