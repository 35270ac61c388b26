package forcefeedback

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	forces []float64
	fail   bool
}

func (r *recorder) Update(force float64, _ time.Duration) error {
	r.forces = append(r.forces, force)
	if r.fail {
		return errors.New("device unplugged")
	}
	return nil
}

type constSource float64

func (c constSource) Feedback() float64 { return float64(c) }

const tick = time.Second / 82

func TestSampler_EmitsOncePerPeriod(t *testing.T) {
	dev := &recorder{}
	s := New(dev, Options{Gain: 1})

	for i := 0; i < 82; i++ {
		require.NoError(t, s.Update(tick, constSource(-50), false))
	}

	// 1/82 s ticks reach 20 ms every second tick
	assert.Len(t, dev.forces, 41)
	assert.Equal(t, uint64(41), s.Samples())
	assert.Equal(t, 0.5, dev.forces[0])
	assert.Equal(t, 0.5, s.Last())
}

func TestSampler_NeutralEmitsZeroAtSameRate(t *testing.T) {
	dev := &recorder{}
	s := New(dev, Options{Gain: 1})

	for i := 0; i < 10; i++ {
		s.Update(tick, constSource(80), true)
	}

	assert.Equal(t, []float64{0, 0, 0, 0, 0}, dev.forces)
}

func TestSampler_ZeroDtNeverEmits(t *testing.T) {
	dev := &recorder{}
	s := New(dev, Options{Gain: 1})

	for i := 0; i < 100; i++ {
		s.Update(0, constSource(80), false)
	}
	assert.Empty(t, dev.forces)
}

func TestSampler_NilSourceIsNeutral(t *testing.T) {
	dev := &recorder{}
	s := New(dev, Options{Gain: 1, Period: 10 * time.Millisecond})

	s.Update(10*time.Millisecond, nil, false)
	assert.Equal(t, []float64{0}, dev.forces)
}

func TestSampler_Force(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		feedback float64
		want     float64
	}{
		{"scaled", Options{Gain: 1}, 25, -0.25},
		{"gain", Options{Gain: 2}, 25, -0.5},
		{"inverted", Options{Gain: 1, Invert: true}, 25, 0.25},
		{"clamped high", Options{Gain: 1}, -500, 1},
		{"clamped low", Options{Gain: 3}, 90, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, New(&recorder{}, tt.opts).Force(tt.feedback), 1e-12)
		})
	}
}

func TestSampler_DeviceError(t *testing.T) {
	dev := &recorder{fail: true}
	s := New(dev, Options{Gain: 1, Period: time.Millisecond})

	err := s.Update(time.Millisecond, constSource(1), false)
	assert.Error(t, err)
	assert.Equal(t, uint64(1), s.Errors())
}

func TestSampler_NilDevice(t *testing.T) {
	s := New(nil, Options{})
	assert.NoError(t, s.Update(time.Second, constSource(1), false))
	assert.Equal(t, uint64(0), s.Samples())
}

func TestLogDevice(t *testing.T) {
	var buf bytes.Buffer
	d := LogDevice{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	require.NoError(t, d.Update(0.5, DefaultPeriod))
	assert.Contains(t, buf.String(), "force=0.5")
	assert.Contains(t, buf.String(), "period=20ms")
}
