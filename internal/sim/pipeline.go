package sim

import (
	"log/slog"
	"time"

	"github.com/stuntsim/simcore/internal/forcefeedback"
	"github.com/stuntsim/simcore/internal/input"
	"github.com/stuntsim/simcore/internal/physics"
	"github.com/stuntsim/simcore/internal/remote"
	"github.com/stuntsim/simcore/internal/timer"
	"github.com/stuntsim/simcore/internal/vehicle"
)

// CommandQueue is drained once at the start of every tick and cleared when
// the session ends.
type CommandQueue interface {
	Drain() []remote.Command
	Clear()
}

// Audio is paused while the session is paused.
type Audio interface {
	SetPaused(paused bool)
}

// TelemetrySink receives vehicle samples. It must not block.
type TelemetrySink interface {
	WriteSamples(tick uint64, simTime time.Duration, samples []vehicle.Sample)
}

type nopAudio struct{}

func (nopAudio) SetPaused(bool) {}

// Pipeline is the work done inside one tick.
type Pipeline struct {
	logger *slog.Logger

	world    physics.Stepper
	substeps int
	period   time.Duration

	cars  *vehicle.Manager
	timer *timer.Timer
	ff    *forcefeedback.Sampler

	inputs       *input.Snapshot
	controls     input.Controls
	asphaltTrack bool

	commands CommandQueue
	boostMax float64

	audio     Audio
	telemetry TelemetrySink
	every     int

	trackLoaded bool
	liveTicks   uint64
	simTime     time.Duration
}

// Run executes one tick. dt is the scheduler's tick duration, zero for
// gated ticks. It never stops part way through.
func (p *Pipeline) Run(dt time.Duration) {
	p.applyCommands()

	if !p.trackLoaded {
		p.feedback(false)
		return
	}

	if p.cars.Paused() {
		if _, ok := p.cars.Local(); ok {
			p.audio.SetPaused(true)
			p.feedback(true)
			return
		}
	}
	p.audio.SetPaused(false)

	p.cars.Each(func(v *vehicle.Vehicle) {
		v.ResetTransient()
	})

	if dt > 0 {
		p.world.Step(p.period, p.substeps)
	}

	forceBrake := p.timer.Waiting() || !p.timer.Loaded()
	secs := dt.Seconds()
	p.cars.Each(func(v *vehicle.Vehicle) {
		v.Dyn.Update(secs)
		p.updateInputs(v, forceBrake)
		p.timer.UpdateDrift(v.ID, timer.DriftInput{
			Heading:       v.Heading(),
			Velocity:      v.Dyn.Velocity(),
			WheelContacts: v.WheelContacts(),
			Position:      v.Dyn.Position(),
		}, secs)
	})

	p.timer.Tick(p.period.Seconds())

	if dt > 0 {
		p.liveTicks++
		p.simTime += dt
		p.sample()
	}

	p.feedback(false)
}

func (p *Pipeline) applyCommands() {
	if p.commands == nil {
		return
	}
	cmds := p.commands.Drain()
	if len(cmds) == 0 {
		return
	}
	v, ok := p.cars.First()
	if !ok {
		p.logger.Debug("Remote commands dropped, no car", "count", len(cmds))
		return
	}
	for _, c := range cmds {
		c.Apply(v.Dyn, p.boostMax)
	}
}

func (p *Pipeline) updateInputs(v *vehicle.Vehicle, forceBrake bool) {
	var raw input.RawState
	if p.inputs != nil {
		raw = p.inputs.Get(v.ID)
	}
	v.Controls = p.controls.Process(raw, input.Context{
		Speed:      v.Dyn.SpeedDir(),
		Asphalt:    p.asphaltTrack || v.Asphalt,
		ForceBrake: forceBrake,
	})
	v.Dyn.HandleInputs(v.Controls, p.period.Seconds())
}

func (p *Pipeline) feedback(paused bool) {
	if p.ff == nil {
		return
	}
	var src forcefeedback.Source
	if v, ok := p.cars.Local(); ok {
		src = v.Dyn
	} else if !paused {
		return
	}
	if err := p.ff.Update(p.period, src, paused); err != nil {
		p.logger.Debug("Force feedback update failed", "error", err)
	}
}

func (p *Pipeline) sample() {
	if p.telemetry == nil || p.every <= 0 || p.liveTicks%uint64(p.every) != 0 {
		return
	}
	out := make([]vehicle.Sample, 0, p.cars.Len())
	p.cars.Each(func(v *vehicle.Vehicle) {
		s := v.Sample()
		if c, ok := p.timer.Car(v.ID); ok {
			s.Drifting = c.Drift.Drifting
			s.DriftScore = c.Drift.Score
		}
		out = append(out, s)
	})
	if len(out) == 0 {
		return
	}
	p.telemetry.WriteSamples(p.liveTicks, p.simTime, out)
}

func (p *Pipeline) reset() {
	p.trackLoaded = false
	p.liveTicks = 0
	p.simTime = 0
	if p.commands != nil {
		p.commands.Clear()
	}
}
