package sim

import "time"

// Clock accumulates wall time handed to the game loop and tracks the
// frame rate extremes for the benchmark summary.
type Clock struct {
	total  time.Duration
	frames uint64
	minDt  time.Duration
	maxDt  time.Duration
}

// Advance records one frame of dt. Non-positive frames are counted but do
// not affect the extremes.
func (c *Clock) Advance(dt time.Duration) {
	c.frames++
	if dt <= 0 {
		return
	}
	c.total += dt
	if c.minDt == 0 || dt < c.minDt {
		c.minDt = dt
	}
	if dt > c.maxDt {
		c.maxDt = dt
	}
}

// Total returns the accumulated wall time.
func (c *Clock) Total() time.Duration { return c.total }

// Frames returns the number of frames recorded.
func (c *Clock) Frames() uint64 { return c.frames }

// Summary is the run-level frame rate report.
type Summary struct {
	Elapsed time.Duration
	Frames  uint64
	MeanFPS float64
	MinFPS  float64
	MaxFPS  float64
}

// Summary returns the frame rate report so far.
func (c *Clock) Summary() Summary {
	s := Summary{Elapsed: c.total, Frames: c.frames}
	if c.total > 0 {
		s.MeanFPS = float64(c.frames) / c.total.Seconds()
	}
	if c.maxDt > 0 {
		s.MinFPS = 1 / c.maxDt.Seconds()
	}
	if c.minDt > 0 {
		s.MaxFPS = 1 / c.minDt.Seconds()
	}
	return s
}
