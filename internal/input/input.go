// Package input turns raw per-player device state into the control vector
// a vehicle consumes each tick.
package input

import (
	"math"
	"sync"
)

// RawState is one player's device state. With a one-axis throttle/brake
// setup, Throttle carries the combined axis in [-1, 1] and Brake is ignored.
type RawState struct {
	Throttle  float64
	Brake     float64
	Steer     float64
	Handbrake float64
	Boost     float64
	ShiftUp   bool
	ShiftDown bool
}

// Vector is the per-tick control input applied to a vehicle.
type Vector struct {
	Throttle  float64
	Brake     float64
	Steer     float64
	Handbrake float64
	Boost     float64
	ShiftUp   bool
	ShiftDown bool
}

// Snapshot holds the latest raw state for each player. Device code writes
// it from its own goroutine; the simulation reads it once per car per tick.
type Snapshot struct {
	mu     sync.Mutex
	states map[int]RawState
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{states: map[int]RawState{}}
}

// Set stores the state for player.
func (s *Snapshot) Set(player int, st RawState) {
	s.mu.Lock()
	s.states[player] = st
	s.mu.Unlock()
}

// Get returns the state for player, zero if none was set.
func (s *Snapshot) Get(player int) RawState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[player]
}

// Steering scales steering with speed for one surface class.
type Steering struct {
	Effect    float64
	VelFactor float64
}

// Controls translates raw state into control vectors.
type Controls struct {
	Asphalt         Steering
	Gravel          Steering
	OneAxisThrottle bool
}

// Context is the per-car, per-tick information Process needs.
type Context struct {
	Speed      float64 // signed speed along the heading, m/s
	Asphalt    bool
	ForceBrake bool // countdown or loading
}

// Process builds the control vector for one car.
func (c Controls) Process(raw RawState, ctx Context) Vector {
	v := Vector{
		Throttle:  clamp01(raw.Throttle),
		Brake:     clamp01(raw.Brake),
		Steer:     clamp(raw.Steer, -1, 1),
		Handbrake: clamp01(raw.Handbrake),
		Boost:     clamp01(raw.Boost),
		ShiftUp:   raw.ShiftUp,
		ShiftDown: raw.ShiftDown,
	}

	if c.OneAxisThrottle {
		axis := clamp(raw.Throttle, -1, 1)
		v.Throttle = math.Max(0, axis)
		v.Brake = math.Max(0, -axis)
	}

	sss := c.Gravel
	if ctx.Asphalt {
		sss = c.Asphalt
	}
	v.Steer *= SteerCoeff(sss, ctx.Speed)

	if ctx.ForceBrake {
		v.Throttle = 0
		v.Brake = 1
		v.Boost = 0
	}
	return v
}

// SteerCoeff returns the multiplier applied to steering at speed. It falls
// with speed but never below 1-Effect. An effect of 0.02 or less disables
// the scaling.
func SteerCoeff(s Steering, speed float64) float64 {
	if s.Effect <= 0.02 {
		return 1
	}
	speed = math.Abs(speed)
	if speed <= 1 {
		return 1
	}
	ss := s.Effect * s.VelFactor * s.VelFactor
	return math.Max(1-s.Effect, 1-ss*speed*0.01)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
