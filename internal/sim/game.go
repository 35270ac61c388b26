package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel/metric"

	"github.com/stuntsim/simcore/internal/carsim"
	"github.com/stuntsim/simcore/internal/forcefeedback"
	"github.com/stuntsim/simcore/internal/input"
	"github.com/stuntsim/simcore/internal/physics"
	"github.com/stuntsim/simcore/internal/timer"
	"github.com/stuntsim/simcore/internal/vehicle"
)

// World is the rigid-body world the game steps and fills.
type World interface {
	physics.Stepper
	AddImmersible(i physics.Immersible)
	AddFluid(f physics.Fluid)
	Clear()
}

// SessionRecorder persists a finished session.
type SessionRecorder interface {
	SaveSession(ctx context.Context, res SessionResult) error
}

// SessionResult is what a session leaves behind.
type SessionResult struct {
	Track   string
	SimMode string
	Started time.Time
	Ended   time.Time
	Ticks   uint64
	Elapsed float64
	Cars    []CarResult
}

// CarResult is one car's timing and drift outcome.
type CarResult struct {
	Name          string
	Local         bool
	Laps          int
	BestLap       float64
	DriftScore    float64
	DriftCount    int
	MaxAngle      float64
	MaxSpeed      float64
	FinalPosition mgl64.Vec3
	DriftPath     []mgl64.Vec2
}

// Settings configures a Game.
type Settings struct {
	Frequency              float64
	PhysicsSubsteps        int
	MinFPS                 float64
	Benchmark              bool
	BenchmarkSpeed         float64
	GatedTicksAdvanceFrame bool
	BoostMax               float64
	Autoshift              bool
	DumpFPS                bool

	Controls     input.Controls
	AsphaltTrack bool

	// TelemetryEvery sends a sample every n live ticks; 0 disables.
	TelemetryEvery int
}

// Deps are the collaborators a Game drives. Registry and World are
// required.
type Deps struct {
	Registry      *carsim.Registry
	World         World
	ForceFeedback *forcefeedback.Sampler
	Inputs        *input.Snapshot
	Commands      CommandQueue
	Audio         Audio
	Telemetry     TelemetrySink
	Recorder      SessionRecorder
	Logger        *slog.Logger
	Meter         metric.Meter
}

// Game owns one simulation: its cars, timer, scheduler and pipeline. All
// methods must be called from the goroutine that calls OneLoop, except
// RequestReload.
type Game struct {
	logger   *slog.Logger
	settings Settings

	reg      *carsim.Registry
	world    World
	cars     *vehicle.Manager
	timer    *timer.Timer
	sched    *Scheduler
	pipe     *Pipeline
	recorder SessionRecorder

	clock        Clock
	displayFrame uint64
	reload       atomic.Bool

	track       string
	defaultTire string
	started     time.Time
}

// New builds a game with no track loaded.
func New(s Settings, d Deps) (*Game, error) {
	if d.Registry == nil {
		return nil, errors.New("game needs a physics registry")
	}
	if d.World == nil {
		return nil, errors.New("game needs a physics world")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Audio == nil {
		d.Audio = nopAudio{}
	}

	g := &Game{
		logger:   d.Logger,
		settings: s,
		reg:      d.Registry,
		world:    d.World,
		cars:     vehicle.NewManager(d.Registry, d.Logger, s.Autoshift),
		timer:    timer.New(),
		recorder: d.Recorder,
	}

	sched, err := NewScheduler(Options{
		Frequency:              s.Frequency,
		MinFPS:                 s.MinFPS,
		Benchmark:              s.Benchmark,
		BenchmarkSpeed:         s.BenchmarkSpeed,
		GatedTicksAdvanceFrame: s.GatedTicksAdvanceFrame,
		Meter:                  d.Meter,
	}, g, g.tick)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	g.sched = sched

	g.pipe = &Pipeline{
		logger:       d.Logger,
		world:        d.World,
		substeps:     s.PhysicsSubsteps,
		period:       sched.Period(),
		cars:         g.cars,
		timer:        g.timer,
		ff:           d.ForceFeedback,
		inputs:       d.Inputs,
		controls:     s.Controls,
		asphaltTrack: s.AsphaltTrack,
		commands:     d.Commands,
		boostMax:     s.BoostMax,
		audio:        d.Audio,
		telemetry:    d.Telemetry,
		every:        s.TelemetryEvery,
	}
	return g, nil
}

func (g *Game) tick(dt time.Duration) { g.pipe.Run(dt) }

// WorldLoaded implements Readiness.
func (g *Game) WorldLoaded() bool { return g.pipe.trackLoaded }

// CountdownActive implements Readiness.
func (g *Game) CountdownActive() bool { return g.timer.Waiting() }

// Scheduler returns the game's scheduler.
func (g *Game) Scheduler() *Scheduler { return g.sched }

// Cars returns the vehicle manager.
func (g *Game) Cars() *vehicle.Manager { return g.cars }

// Timer returns the session timer.
func (g *Game) Timer() *timer.Timer { return g.timer }

// Track returns the loaded track name, or "".
func (g *Game) Track() string { return g.track }

// DisplayFrame returns the number of OneLoop calls.
func (g *Game) DisplayFrame() uint64 { return g.displayFrame }

// Clock returns the wall time statistics.
func (g *Game) Clock() *Clock { return &g.clock }

// RequestReload asks for the physics tables to be reloaded at the start of
// the next OneLoop. Safe to call from any goroutine.
func (g *Game) RequestReload() { g.reload.Store(true) }

// OneLoop advances the game by one frame of wall time dt.
func (g *Game) OneLoop(dt time.Duration) TickReport {
	if g.reload.Swap(false) {
		g.reloadSimData()
	}

	rep := g.sched.Tick(dt)
	g.clock.Advance(dt)
	g.displayFrame++

	if g.settings.DumpFPS && dt > 0 {
		g.logger.Info("Frame", "frame", g.displayFrame, "fps", 1/dt.Seconds(), "ticks", rep.Ticks)
	}
	if rep.Capped {
		g.logger.Debug("Tick cap reached", "discarded", rep.Discarded, "ticks", rep.Ticks)
	}
	return rep
}

func (g *Game) reloadSimData() {
	if err := g.reg.ReloadSimData(g.defaultTire); err != nil {
		g.logger.Error("Reloading sim data failed", "error", err)
	}
	g.cars.Rebind()
}

// LoadTrack starts a session on track. defaultTire names the tire used by
// surfaces without one; pretime is the countdown in seconds.
func (g *Game) LoadTrack(track, defaultTire string, pretime float64, fluids []physics.Fluid) error {
	if g.pipe.trackLoaded {
		return fmt.Errorf("track %q already loaded", g.track)
	}
	if err := g.reg.ReloadSimData(defaultTire); err != nil {
		return fmt.Errorf("loading sim data for %q: %w", track, err)
	}

	g.world.Clear()
	for _, f := range fluids {
		g.world.AddFluid(f)
	}
	g.timer.Load(pretime)
	g.sched.Reset()

	g.track = track
	g.defaultTire = defaultTire
	g.started = time.Now()
	g.pipe.trackLoaded = true

	g.logger.Info("Track loaded", "track", track, "pretime", pretime, "fluids", len(fluids))
	return nil
}

// LoadCar adds a car to the running session.
func (g *Game) LoadCar(spec vehicle.CarSpec, dyn vehicle.Dynamics, isLocal bool) (vehicle.Handle, error) {
	if !g.pipe.trackLoaded {
		return vehicle.NoHandle, errors.New("no track loaded")
	}
	h, err := g.cars.LoadCar(spec, dyn, isLocal)
	if err != nil {
		return vehicle.NoHandle, fmt.Errorf("loading car %q: %w", spec.Name, err)
	}
	v, _ := g.cars.Get(h)
	g.timer.AddCar(spec.Name)
	g.world.AddImmersible(v)
	return h, nil
}

// SetPaused pauses or resumes the session.
func (g *Game) SetPaused(p bool) { g.cars.SetPaused(p) }

// LeaveGame ends the session, dropping every car. The result is handed to
// the recorder if one is set; a recorder error is returned after the game
// has been left.
func (g *Game) LeaveGame(ctx context.Context) error {
	if !g.pipe.trackLoaded {
		return nil
	}
	g.timer.CommitDrifts()
	res := g.Result()

	g.cars.LeaveGame()
	g.timer.Unload()
	g.world.Clear()
	g.sched.Reset()
	g.pipe.reset()
	g.track = ""

	g.logger.Info("Left game", "track", res.Track, "cars", len(res.Cars), "ticks", res.Ticks)

	if g.recorder == nil {
		return nil
	}
	if err := g.recorder.SaveSession(ctx, res); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// End leaves any running session and returns the frame rate summary,
// logging it in benchmark mode.
func (g *Game) End(ctx context.Context) (Summary, error) {
	err := g.LeaveGame(ctx)
	sum := g.clock.Summary()
	if g.settings.Benchmark {
		g.logger.Info("Benchmark",
			"elapsed", sum.Elapsed,
			"frames", sum.Frames,
			"meanFps", sum.MeanFPS,
			"minFps", sum.MinFPS,
			"maxFps", sum.MaxFPS)
	}
	return sum, err
}

// Result summarises the running session.
func (g *Game) Result() SessionResult {
	res := SessionResult{
		Track:   g.track,
		SimMode: g.reg.Paths().SimMode,
		Started: g.started,
		Ended:   time.Now(),
		Ticks:   g.timer.Ticks(),
		Elapsed: g.timer.Elapsed(),
	}
	local, hasLocal := g.cars.Local()
	g.cars.Each(func(v *vehicle.Vehicle) {
		cr := CarResult{
			Name:          v.Name,
			Local:         hasLocal && local == v,
			FinalPosition: v.Dyn.Position(),
		}
		if c, ok := g.timer.Car(v.ID); ok {
			cr.Laps = c.Laps
			cr.BestLap = c.BestLap
			cr.DriftScore = c.Drift.Score
			cr.DriftCount = c.Drift.Count
			cr.MaxAngle = c.Drift.BestAngle
			cr.MaxSpeed = c.Drift.BestSpeed
			cr.DriftPath = append([]mgl64.Vec2(nil), c.Drift.Path...)
		}
		res.Cars = append(res.Cars, cr)
	})
	return res
}
