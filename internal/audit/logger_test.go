package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLogs(t)

	Log(context.Background(), Event{
		Type:      EventDecisionRecorded,
		UserID:    "user-a",
		SessionID: "sess-1",
		Details:   map[string]interface{}{"verdict": "accept", "attempt": 2},
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "security", entry["audit"])
	assert.Equal(t, "decision_recorded", entry["event_type"])
	assert.Equal(t, "user-a", entry["user_id"])
	assert.Equal(t, "sess-1", entry["session_id"])
	assert.Equal(t, "accept", entry["verdict"])
	assert.Equal(t, float64(2), entry["attempt"])
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLogs(t)

	req := httptest.NewRequest("POST", "/v1/sessions/join", nil)
	req.RemoteAddr = "198.51.100.4"
	req.Header.Set("User-Agent", "vaicheck-ios/2.1")

	LogFromRequest(req, Event{Type: EventJoinRejected})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "198.51.100.4", entry["ip"])
	assert.Equal(t, "vaicheck-ios/2.1", entry["user_agent"])
	assert.NotContains(t, entry, "user_id")
}
