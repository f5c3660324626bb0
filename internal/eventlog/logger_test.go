package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")

	logger, err := NewLogger(path)
	require.NoError(t, err)

	require.NoError(t, logger.LogCapture(CaptureStarted, &CaptureDetails{
		DeviceID:   "speakers",
		DeviceName: "Speakers",
		SampleRate: 48000,
		ChunkSize:  1024,
	}))
	require.NoError(t, logger.LogCapture(CaptureStopped, &CaptureDetails{
		DeviceID: "speakers",
		Overruns: 2,
	}))
	require.NoError(t, logger.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, CaptureStarted, events[0].Type)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, CaptureStopped, events[1].Type)
}

func TestLoggerAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	logger, err := NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, logger.Log(&Event{Type: DeviceLost, Message: "endpoint removed"}))
	require.NoError(t, logger.Close())

	logger, err = NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, logger.Log(&Event{Type: CaptureOverrun}))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(data))
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
