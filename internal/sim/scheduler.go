// Package sim drives the simulation: a fixed-timestep scheduler, the
// per-tick vehicle pipeline and the Game facade that owns both.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultFrequency = 82.0
	DefaultMinFPS    = 10.0
)

// Readiness tells the scheduler whether ticks may move the world.
type Readiness interface {
	WorldLoaded() bool
	CountdownActive() bool
}

// PoseListener is told about every tick boundary so it can interpolate
// poses between ticks.
type PoseListener interface {
	NewPoses(period time.Duration)
}

// TickFunc runs one tick. dt is the tick period for live ticks and 0 for
// gated ones.
type TickFunc func(dt time.Duration)

// Options configures a Scheduler.
type Options struct {
	// Frequency is the tick rate in Hz.
	Frequency float64
	// MinFPS bounds how much wall time one call may consume.
	MinFPS float64

	Benchmark      bool
	BenchmarkSpeed float64

	// GatedTicksAdvanceFrame makes gated ticks count as frames.
	GatedTicksAdvanceFrame bool

	// Meter defaults to the global OTel meter.
	Meter metric.Meter
}

// TickReport describes one Tick call.
type TickReport struct {
	Ticks     int
	Live      bool
	Gated     int
	Discarded time.Duration
	Capped    bool
	Leftover  time.Duration
	Frame     uint64
}

// Scheduler turns variable wall-clock deltas into whole fixed-period
// ticks. Time that does not fit in a tick carries to the next call; time
// beyond the per-call budget is dropped. It is not safe for concurrent use.
type Scheduler struct {
	period   time.Duration
	maxTime  time.Duration
	maxTicks int

	benchmark bool
	speed     float64
	gatedAdv  bool

	ready     Readiness
	tick      TickFunc
	listeners []PoseListener

	target time.Duration
	frame  uint64
	ticks  uint64

	tickCounter   metric.Int64Counter
	discardedTime metric.Float64Counter
	cappedCounter metric.Int64Counter
}

// NewScheduler builds a scheduler calling fn once per tick.
func NewScheduler(opts Options, ready Readiness, fn TickFunc) (*Scheduler, error) {
	if ready == nil {
		return nil, errors.New("scheduler needs a readiness source")
	}
	if fn == nil {
		return nil, errors.New("scheduler needs a tick function")
	}
	if opts.Frequency <= 0 {
		opts.Frequency = DefaultFrequency
	}
	if opts.MinFPS <= 0 {
		opts.MinFPS = DefaultMinFPS
	}
	if opts.BenchmarkSpeed <= 0 {
		opts.BenchmarkSpeed = 1
	}

	s := &Scheduler{
		period:    time.Duration(float64(time.Second) / opts.Frequency),
		maxTime:   time.Duration(float64(time.Second) / opts.MinFPS),
		benchmark: opts.Benchmark,
		speed:     opts.BenchmarkSpeed,
		gatedAdv:  opts.GatedTicksAdvanceFrame,
		ready:     ready,
		tick:      fn,
	}
	if s.period <= 0 {
		return nil, fmt.Errorf("tick frequency %v Hz is too high", opts.Frequency)
	}
	s.maxTicks = max(int(s.maxTime/s.period), 1)

	m := opts.Meter
	if m == nil {
		m = meter()
	}
	var err error
	if s.tickCounter, err = m.Int64Counter("sim.ticks",
		metric.WithDescription("Ticks dispatched"),
		metric.WithUnit("{tick}")); err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}
	if s.discardedTime, err = m.Float64Counter("sim.time.discarded",
		metric.WithDescription("Wall time dropped by the per-call budget"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating discarded time counter: %w", err)
	}
	if s.cappedCounter, err = m.Int64Counter("sim.ticks.capped",
		metric.WithDescription("Calls that hit the tick cap")); err != nil {
		return nil, fmt.Errorf("creating capped counter: %w", err)
	}
	return s, nil
}

// AddPoseListener registers l for tick boundary notifications.
func (s *Scheduler) AddPoseListener(l PoseListener) {
	s.listeners = append(s.listeners, l)
}

// Period returns the tick period.
func (s *Scheduler) Period() time.Duration { return s.period }

// MaxTicks returns the per-call tick cap.
func (s *Scheduler) MaxTicks() int { return s.maxTicks }

// MaxTime returns the most wall time a single call accepts.
func (s *Scheduler) MaxTime() time.Duration { return s.maxTime }

// Leftover returns the time carried to the next call.
func (s *Scheduler) Leftover() time.Duration { return s.target }

// Frame returns the frame counter.
func (s *Scheduler) Frame() uint64 { return s.frame }

// TotalTicks returns every tick dispatched so far, live or gated.
func (s *Scheduler) TotalTicks() uint64 { return s.ticks }

// Reset drops the carried time.
func (s *Scheduler) Reset() { s.target = 0 }

// Tick consumes dt of wall time. Liveness is read once, before the first
// tick of the call.
func (s *Scheduler) Tick(dt time.Duration) TickReport {
	var rep TickReport
	if dt < 0 {
		dt = 0
	}
	if dt > s.maxTime {
		rep.Discarded = dt - s.maxTime
		dt = s.maxTime
	}
	if s.benchmark {
		dt = time.Duration(float64(dt) * s.speed)
	}
	s.target += dt

	rep.Live = s.ready.WorldLoaded() && !s.ready.CountdownActive()
	step := s.period
	if !rep.Live {
		step = 0
	}

	for s.target >= s.period && rep.Ticks < s.maxTicks {
		if rep.Live || s.gatedAdv {
			s.frame++
		}
		s.tick(step)
		for _, l := range s.listeners {
			l.NewPoses(s.period)
		}
		s.target -= s.period
		rep.Ticks++
	}
	if !rep.Live {
		rep.Gated = rep.Ticks
	}

	if rep.Ticks == s.maxTicks && s.target >= s.period {
		rest := s.target % s.period
		rep.Discarded += s.target - rest
		rep.Capped = true
		s.target = rest
	}

	s.ticks += uint64(rep.Ticks)
	rep.Leftover = s.target
	rep.Frame = s.frame
	s.record(rep)
	return rep
}

func (s *Scheduler) record(rep TickReport) {
	ctx := context.Background()
	if rep.Ticks > 0 {
		s.tickCounter.Add(ctx, int64(rep.Ticks), metric.WithAttributes(attribute.Bool("live", rep.Live)))
	}
	if rep.Discarded > 0 {
		s.discardedTime.Add(ctx, rep.Discarded.Seconds())
	}
	if rep.Capped {
		s.cappedCounter.Add(ctx, 1)
	}
}
