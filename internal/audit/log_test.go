package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerRoundTrip(t *testing.T) {
	logger := NewLogger(filepath.Join(t.TempDir(), "state", "audit.sqlite"))

	require.NoError(t, logger.LogEvent("labloop", "session_started", map[string]any{"session_id": "s1"}))
	require.NoError(t, logger.LogEvent("labloop", "run_dispatched", map[string]any{"run": 1}))
	require.NoError(t, logger.LogEvent("labloop", "run_finished", map[string]any{"run": 1, "status": "succeeded"}))

	events, err := logger.Events(0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "session_started", events[0].Type)
	assert.Equal(t, "labloop", events[0].Actor)
	assert.False(t, events[0].Time.IsZero())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[2].Payload, &payload))
	assert.Equal(t, "succeeded", payload["status"])
}

func TestEventsLimitKeepsMostRecent(t *testing.T) {
	logger := NewLogger(filepath.Join(t.TempDir(), "audit.sqlite"))
	for _, typ := range []string{"a", "b", "c", "d"} {
		require.NoError(t, logger.LogEvent("test", typ, nil))
	}

	events, err := logger.Events(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].Type)
	assert.Equal(t, "d", events[1].Type)
}

func TestEventsEmptyLog(t *testing.T) {
	logger := NewLogger(filepath.Join(t.TempDir(), "audit.sqlite"))
	events, err := logger.Events(10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLoggerWithoutPath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	var nilLogger *Logger
	for name, logger := range map[string]*Logger{"nil": nilLogger, "empty": NewLogger("")} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, logger.LogEvent("labloop", "ping", nil), ErrNoPath)
			_, err := logger.Events(0)
			require.ErrorIs(t, err, ErrNoPath)
		})
	}
	assert.NoDirExists(t, ".labloop")
}

func TestLogEventNilPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.sqlite")
	require.NoError(t, NewLogger(path).LogEvent("labloop", "ping", nil))

	events, err := NewLogger(path).Events(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ping", events[0].Type)
	assert.JSONEq(t, "null", string(events[0].Payload))
}
