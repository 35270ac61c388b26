package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_WritesLatestStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{StatusPath: path, Interval: 10 * time.Millisecond})
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	s.Publish(Status{Track: "oval", Frame: 10, Cars: 2})
	s.Publish(Status{Track: "oval", Frame: 12, Cars: 2})

	require.Eventually(t, func() bool { return s.Written() > 0 }, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.False(t, s.IsRunning())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Status
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "oval", got.Track)
	assert.Equal(t, uint64(12), got.Frame)
	assert.Equal(t, 2, got.Cars)
}

func TestService_StopFlushesPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{StatusPath: path, Interval: time.Hour})
	require.NoError(t, s.Start())

	s.Publish(Status{Track: "ring", Ticks: 99})
	s.Stop()

	assert.Equal(t, uint64(1), s.Written())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ticks": 99`)
}

func TestService_NothingPublished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{StatusPath: path, Interval: time.Hour})
	require.NoError(t, s.Start())
	s.Stop()

	assert.Equal(t, uint64(0), s.Written())
	assert.Equal(t, Status{}, s.Latest())
}

func TestService_StartTwiceAndStopIdle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{StatusPath: path})
	s.Stop()

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()
}

func TestService_BadPath(t *testing.T) {
	s := NewService(Dependencies{StatusPath: filepath.Join(t.TempDir(), "missing", "status.json")})
	err := s.Start()
	require.Error(t, err)
	assert.False(t, s.IsRunning())
}
