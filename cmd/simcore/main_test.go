package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuntsim/simcore/internal/carsim"
	"github.com/stuntsim/simcore/internal/config"
	"github.com/stuntsim/simcore/internal/input"
	"github.com/stuntsim/simcore/internal/monitor"
	"github.com/stuntsim/simcore/internal/physics"
	"github.com/stuntsim/simcore/internal/queue"
	"github.com/stuntsim/simcore/internal/remote"
	"github.com/stuntsim/simcore/internal/sim"
)

func TestNormalizeArgs(t *testing.T) {
	got := normalizeArgs([]string{"-debug", "--dumpfps", "-h", "-c", "conf", "-benchmark"})
	assert.Equal(t, []string{"--debug", "--dumpfps", "-h", "-c", "conf", "--benchmark"}, got)
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Flags
	}{
		{"defaults", nil, Flags{ConfigDir: "."}},
		{"single dash", []string{"-debug", "-dumpfps"}, Flags{Debug: true, DumpFPS: true, ConfigDir: "."}},
		{"double dash", []string{"--benchmark", "--config", "/etc/simcore"}, Flags{Benchmark: true, ConfigDir: "/etc/simcore"}},
		{"short config", []string{"-c", "conf"}, Flags{ConfigDir: "conf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, io.Discard)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	var buf bytes.Buffer
	f, err := parseFlags([]string{"-help"}, &buf)
	require.NoError(t, err)
	assert.True(t, f.Help)
	assert.Contains(t, buf.String(), "Usage of simcore")
	assert.Contains(t, buf.String(), "--benchmark")
}

func TestParseFlags_Unknown(t *testing.T) {
	_, err := parseFlags([]string{"--fast"}, io.Discard)
	require.Error(t, err)
}

func TestSettings(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(`{
		"sim": { "frequency": 64, "minFps": 8 },
		"input": { "asphaltTrack": true },
		"telemetry": { "enabled": true, "everyTicks": 4 }
	}`), 0644))
	require.NoError(t, config.Load(dir))

	s := settings(Flags{Benchmark: true, DumpFPS: true})
	assert.Equal(t, 64.0, s.Frequency)
	assert.Equal(t, 8.0, s.MinFPS)
	assert.True(t, s.Benchmark)
	assert.True(t, s.DumpFPS)
	assert.True(t, s.AsphaltTrack)
	assert.Equal(t, 4, s.TelemetryEvery)
	assert.InDelta(t, 0.730, s.Controls.Asphalt.VelFactor, 1e-9)
}

func TestSettings_TelemetryOff(t *testing.T) {
	t.Cleanup(viper.Reset)
	config.SetDefaults()

	s := settings(Flags{})
	assert.Equal(t, 0, s.TelemetryEvery)
	assert.False(t, s.Benchmark)
}

func TestCarSpecs(t *testing.T) {
	grid := carSpecs([]config.CarConfig{
		{Name: "a", Surface: "asphalt", Speed: 10},
		{Name: "b", Tire: "slick"},
	})
	require.Len(t, grid, 2)

	assert.True(t, grid[0].local)
	assert.False(t, grid[1].local)
	assert.Equal(t, "asphalt", grid[0].spec.Surface)
	assert.Equal(t, "slick", grid[1].spec.Tire)
	assert.Equal(t, 10.0, grid[0].dyn.Velocity().X())
	assert.Equal(t, carSpacing, grid[1].dyn.Position().Y())
}

func TestAutopilot(t *testing.T) {
	inputs := input.NewSnapshot()
	autopilot{inputs: inputs, cars: 2}.drive(0)

	assert.Equal(t, 0.7, inputs.Get(0).Throttle)
	assert.Equal(t, 0.0, inputs.Get(0).Steer)
	assert.NotEqual(t, 0.0, inputs.Get(1).Steer)
	assert.Equal(t, input.RawState{}, inputs.Get(2))
}

func TestLoopState(t *testing.T) {
	var s loopState
	assert.Equal(t, "", s.trackName())
	s.track.Store("oval")
	s.frame.Store(7)
	assert.Equal(t, "oval", s.trackName())
	assert.Equal(t, uint64(7), s.frame.Load())
}

func newLoopGame(t *testing.T) (*sim.Game, *input.Snapshot, *queue.Queue[remote.Command]) {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data", "normal")
	require.NoError(t, os.MkdirAll(dataDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "surfaces.cfg"), []byte(`[asphalt]
ID = 1
BumpWaveLength = 10
BumpAmplitude = 0.01
FrictionTread = 1.0
RollingDrag = 5
`), 0644))

	reg := carsim.NewRegistry(carsim.Paths{
		BuiltinDir: filepath.Join(root, "data"),
		UserDir:    filepath.Join(root, "user"),
		SimMode:    "normal",
	}, Logger)

	inputs := input.NewSnapshot()
	cmds := queue.New[remote.Command](8)
	g, err := sim.New(sim.Settings{
		Frequency:       82,
		PhysicsSubsteps: 24,
		MinFPS:          10,
		BenchmarkSpeed:  1,
		BoostMax:        3,
	}, sim.Deps{
		Registry: reg,
		World:    physics.NewWorld(160),
		Inputs:   inputs,
		Commands: cmds,
		Logger:   Logger,
	})
	require.NoError(t, err)
	require.NoError(t, g.LoadTrack("oval", "", 0, nil))

	for _, c := range carSpecs([]config.CarConfig{{Name: "player", Surface: "asphalt"}, {Name: "ghost"}}) {
		_, err := g.LoadCar(c.spec, c.dyn, c.local)
		require.NoError(t, err)
	}
	return g, inputs, cmds
}

func TestGameLoop_StopsAtDuration(t *testing.T) {
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	g, inputs, cmds := newLoopGame(t)

	status := monitor.NewService(monitor.Dependencies{
		Logger:     Logger,
		StatusPath: filepath.Join(t.TempDir(), "status.json"),
		Interval:   time.Hour,
	})
	require.NoError(t, status.Start())

	state := &loopState{}
	state.track.Store("oval")
	loop := &gameLoop{
		game:     g,
		pilot:    autopilot{inputs: inputs, cars: 2},
		state:    state,
		status:   status,
		commands: cmds.Len,
		simMode:  "normal",
		limit:    50 * time.Millisecond,
		paced:    true,
	}
	loop.run(context.Background(), nil)
	status.Stop()

	assert.GreaterOrEqual(t, g.Clock().Total(), 50*time.Millisecond)
	assert.Positive(t, g.Scheduler().TotalTicks())
	assert.Equal(t, g.Scheduler().Frame(), state.frame.Load())

	st := status.Latest()
	assert.Equal(t, "oval", st.Track)
	assert.Equal(t, 2, st.Cars)
	assert.Equal(t, g.DisplayFrame(), st.DisplayFrame)
	assert.Equal(t, uint64(1), status.Written())
	assert.Equal(t, 0.7, inputs.Get(1).Throttle)
}

func TestGameLoop_StopsOnCancel(t *testing.T) {
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	g, inputs, _ := newLoopGame(t)

	ctx, cancel := context.WithCancel(context.Background())
	reload := make(chan os.Signal, 1)
	reload <- os.Interrupt

	done := make(chan struct{})
	loop := &gameLoop{
		game:  g,
		pilot: autopilot{inputs: inputs, cars: 2},
		state: &loopState{},
	}
	go func() {
		loop.run(ctx, reload)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Empty(t, reload)
	assert.Positive(t, g.DisplayFrame())
}
