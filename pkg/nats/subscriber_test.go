package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	data := []byte(`{"record_id":"r-1","portal":"nitw","occurred_at":"` + at.Format(time.RFC3339Nano) + `"}`)

	event, err := decodeEvent("events.VERIFICATION_COMPLETED", data)
	require.NoError(t, err)

	assert.Equal(t, "VERIFICATION_COMPLETED", event.EventType())
	assert.True(t, at.Equal(event.Timestamp()))
	assert.Equal(t, "r-1", event.Payload()["record_id"])
	assert.NotContains(t, event.Payload(), occurredAtKey)
}

func TestDecodeEvent_Malformed(t *testing.T) {
	_, err := decodeEvent("events.X", []byte("not json"))
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "events.VERIFICATION_FAILED", Subject("VERIFICATION_FAILED"))
}
