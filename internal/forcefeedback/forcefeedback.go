// Package forcefeedback resamples the per-tick steering force to the rate
// a haptic device expects.
package forcefeedback

import "time"

// DefaultPeriod is the device update period.
const DefaultPeriod = 20 * time.Millisecond

// Device receives force samples in [-1, 1].
type Device interface {
	Update(force float64, period time.Duration) error
}

// Source provides the raw feedback of the controlled vehicle.
type Source interface {
	Feedback() float64
}

// Options configures a Sampler.
type Options struct {
	Gain   float64
	Invert bool
	Period time.Duration
}

// Sampler accumulates tick time and emits one sample per period.
type Sampler struct {
	dev    Device
	gain   float64
	invert bool
	period time.Duration

	acc     time.Duration
	last    float64
	samples uint64
	errs    uint64
}

// New returns a sampler writing to dev.
func New(dev Device, opts Options) *Sampler {
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	return &Sampler{dev: dev, gain: opts.Gain, invert: opts.Invert, period: opts.Period}
}

// Update advances the sampler by dt. Once a period has accumulated it
// sends the scaled force of src, or 0 when neutral is set or src is nil.
// It returns the device error, if any.
func (s *Sampler) Update(dt time.Duration, src Source, neutral bool) error {
	if s.dev == nil {
		return nil
	}
	s.acc += dt
	if s.acc < s.period {
		return nil
	}
	s.acc = 0

	force := 0.0
	if !neutral && src != nil {
		force = s.Force(src.Feedback())
	}
	s.last = force
	s.samples++
	if err := s.dev.Update(force, s.period); err != nil {
		s.errs++
		return err
	}
	return nil
}

// Force maps raw feedback to a device force.
func (s *Sampler) Force(feedback float64) float64 {
	f := s.gain * -feedback / 100
	if s.invert {
		f = -f
	}
	return max(-1, min(1, f))
}

// Last returns the most recent sample sent.
func (s *Sampler) Last() float64 { return s.last }

// Samples returns the number of samples sent.
func (s *Sampler) Samples() uint64 { return s.samples }

// Errors returns the number of failed device updates.
func (s *Sampler) Errors() uint64 { return s.errs }
