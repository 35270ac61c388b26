package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/viper"

	"github.com/stuntsim/simcore/internal/carsim"
	"github.com/stuntsim/simcore/internal/config"
	"github.com/stuntsim/simcore/internal/forcefeedback"
	"github.com/stuntsim/simcore/internal/input"
	"github.com/stuntsim/simcore/internal/monitor"
	"github.com/stuntsim/simcore/internal/physics"
	"github.com/stuntsim/simcore/internal/sim"
	"github.com/stuntsim/simcore/internal/vehicle"
)

// carSpacing is the lateral gap between cars on the grid, in metres.
const carSpacing = 4.0

// settings builds the game settings from config and flags.
func settings(flags Flags) sim.Settings {
	sc := config.GetSimConfig()
	ic := config.GetInputConfig()
	tc := config.GetTelemetryConfig()

	s := sim.Settings{
		Frequency:              sc.Frequency,
		PhysicsSubsteps:        sc.PhysicsSubsteps,
		MinFPS:                 sc.MinFPS,
		Benchmark:              flags.Benchmark,
		BenchmarkSpeed:         sc.BenchmarkSpeed,
		GatedTicksAdvanceFrame: sc.GatedTicksAdvanceFrame,
		BoostMax:               sc.BoostMax,
		Autoshift:              sc.Autoshift,
		DumpFPS:                flags.DumpFPS,
		Controls: input.Controls{
			Asphalt:         input.Steering{Effect: ic.Asphalt.Effect, VelFactor: ic.Asphalt.VelFactor},
			Gravel:          input.Steering{Effect: ic.Gravel.Effect, VelFactor: ic.Gravel.VelFactor},
			OneAxisThrottle: ic.OneAxisThrottle,
		},
		AsphaltTrack: ic.AsphaltTrack,
	}
	if tc.Enabled {
		s.TelemetryEvery = tc.EveryTicks
	}
	return s
}

// carSpecs lines the configured cars up on a grid. The first car is the
// local one.
func carSpecs(cars []config.CarConfig) []gridCar {
	out := make([]gridCar, 0, len(cars))
	for i, c := range cars {
		dyn := vehicle.NewSimpleDynamics(mgl64.Vec3{0, float64(i) * carSpacing, 0}, 0)
		dyn.SetVelocity(mgl64.Vec3{c.Speed, 0, 0})
		out = append(out, gridCar{
			spec: vehicle.CarSpec{
				Name:       c.Name,
				Surface:    c.Surface,
				Tire:       c.Tire,
				Suspension: c.Suspension,
			},
			dyn:   dyn,
			local: i == 0,
		})
	}
	return out
}

type gridCar struct {
	spec  vehicle.CarSpec
	dyn   vehicle.Dynamics
	local bool
}

// autopilot drives every car with a steady throttle and a slow steering
// sweep, standing in for input devices.
type autopilot struct {
	inputs *input.Snapshot
	cars   int
}

func (a autopilot) drive(t time.Duration) {
	secs := t.Seconds()
	for id := 0; id < a.cars; id++ {
		a.inputs.Set(id, input.RawState{
			Throttle: 0.7,
			Steer:    0.6 * math.Sin(0.5*secs+float64(id)),
		})
	}
}

// loopState is what log records and the status file read from outside the
// simulation goroutine.
type loopState struct {
	track atomic.Value
	frame atomic.Uint64
}

func (s *loopState) trackName() string {
	if v, ok := s.track.Load().(string); ok {
		return v
	}
	return ""
}

// run loads the configured session and drives it until ctx is done or the
// session duration has elapsed.
func run(ctx context.Context, flags Flags) error {
	level := viper.GetString("logLevel")
	if flags.Debug {
		level = "debug"
	}

	sc := config.GetSimConfig()
	pc := config.GetPathsConfig()
	session := config.GetSessionConfig()

	reg := carsim.NewRegistry(carsim.Paths{
		BuiltinDir: pc.BuiltinDir,
		UserDir:    pc.UserDir,
		SimMode:    sc.SimMode,
	}, Logger)

	var ff *forcefeedback.Sampler
	if fc := config.GetForceFeedbackConfig(); fc.Enabled {
		ff = forcefeedback.New(forcefeedback.LogDevice{Logger: Logger}, forcefeedback.Options{
			Gain:   fc.Gain,
			Invert: fc.Invert,
			Period: fc.Period,
		})
	}

	svc, err := startServices(ctx, level)
	if err != nil {
		return err
	}
	defer svc.close(context.Background())

	inputs := input.NewSnapshot()
	deps := sim.Deps{
		Registry:      reg,
		World:         physics.NewWorld(sc.PhysicsFrequency),
		ForceFeedback: ff,
		Inputs:        inputs,
		Commands:      svc.commands,
		Logger:        Logger,
	}
	if svc.influx != nil {
		deps.Telemetry = svc.influx
	}
	if svc.records != nil {
		deps.Recorder = svc.records
	}

	game, err := sim.New(settings(flags), deps)
	if err != nil {
		return fmt.Errorf("creating game: %w", err)
	}

	state := &loopState{}
	SlogManager.GetSimMode = func() string { return sc.SimMode }
	SlogManager.GetTrackName = state.trackName
	SlogManager.GetFrame = state.frame.Load

	if err := game.LoadTrack(session.Track, pc.DefaultTire, session.Pretime, nil); err != nil {
		return err
	}
	state.track.Store(session.Track)
	if svc.influx != nil {
		svc.influx.StartSession(session.Track, time.Now())
	}

	grid := carSpecs(session.Cars)
	for _, c := range grid {
		if _, err := game.LoadCar(c.spec, c.dyn, c.local); err != nil {
			return err
		}
	}

	var status *monitor.Service
	if stc := config.GetStatusConfig(); stc.Enabled {
		if err := os.MkdirAll(filepath.Dir(stc.Path), 0755); err != nil {
			Logger.Error("Failed to create status dir", "error", err)
		}
		status = monitor.NewService(monitor.Dependencies{
			Logger:     Logger,
			StatusPath: stc.Path,
			Interval:   stc.Interval,
		})
		if err := status.Start(); err != nil {
			Logger.Error("Status file disabled", "error", err)
			status = nil
		} else {
			defer status.Stop()
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	loop := &gameLoop{
		game:     game,
		pilot:    autopilot{inputs: inputs, cars: len(grid)},
		state:    state,
		status:   status,
		commands: svc.commands.Len,
		ff:       ff,
		simMode:  sc.SimMode,
		limit:    session.Duration,
		paced:    !flags.Benchmark,
	}
	loop.run(ctx, hup)

	sum, err := game.End(context.Background())
	Logger.Info("Session ended",
		"frames", sum.Frames,
		"elapsed", sum.Elapsed,
		"meanFps", sum.MeanFPS,
		"ticks", game.Scheduler().TotalTicks())
	if err != nil {
		return err
	}
	if svc.records != nil {
		Logger.Info("Session recorded", "id", svc.records.LastID())
	}
	return nil
}

// gameLoop paces OneLoop calls against the wall clock.
type gameLoop struct {
	game     *sim.Game
	pilot    autopilot
	state    *loopState
	status   *monitor.Service
	commands func() int
	ff       *forcefeedback.Sampler
	simMode  string
	limit    time.Duration
	paced    bool
}

func (l *gameLoop) run(ctx context.Context, reload <-chan os.Signal) {
	period := l.game.Scheduler().Period()
	last := time.Now()

	var ticker *time.Ticker
	if l.paced {
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-reload:
				Logger.Info("Reload requested")
				l.game.RequestReload()
				continue
			case <-ticker.C:
			}
		} else {
			select {
			case <-ctx.Done():
				return
			case <-reload:
				Logger.Info("Reload requested")
				l.game.RequestReload()
			default:
			}
		}

		now := time.Now()
		dt := now.Sub(last)
		last = now

		l.pilot.drive(l.game.Clock().Total())
		rep := l.game.OneLoop(dt)
		l.state.frame.Store(rep.Frame)
		l.publish(rep)

		if l.limit > 0 && l.game.Clock().Total() >= l.limit {
			Logger.Info("Session duration reached", "duration", l.limit)
			return
		}
	}
}

func (l *gameLoop) publish(rep sim.TickReport) {
	if l.status == nil {
		return
	}
	st := monitor.Status{
		Time:         time.Now(),
		Track:        l.game.Track(),
		SimMode:      l.simMode,
		Frame:        rep.Frame,
		DisplayFrame: l.game.DisplayFrame(),
		Ticks:        l.game.Scheduler().TotalTicks(),
		LeftoverMs:   float64(rep.Leftover) / float64(time.Millisecond),
		Cars:         l.game.Cars().Len(),
		Countdown:    l.game.Timer().Countdown(),
		MeanFPS:      l.game.Clock().Summary().MeanFPS,
	}
	if l.commands != nil {
		st.PendingCommands = l.commands()
	}
	if l.ff != nil {
		st.FFSamples = l.ff.Samples()
	}
	l.status.Publish(st)
}
