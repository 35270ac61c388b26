package carsim

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLateral      = []float64{1.6, -34, 1250, 2320, 12.8, 0, -0.0053, 0.1925, 0, 0, 0, 0, 0, 0, 0}
	testLongitudinal = []float64{1.65, 0, 1690, 0, 229, 0, 0, 0, -10, 0, 0}
)

// tireBody renders a complete [params] section, leaving out skip.
func tireBody(skip string) string {
	var sb strings.Builder
	sb.WriteString("[params]\n")
	for i, v := range testLateral {
		if k := lateralKey(i); k != skip {
			fmt.Fprintf(&sb, "%s = %g\n", k, v)
		}
	}
	for i, v := range testLongitudinal {
		if k := fmt.Sprintf("b%d", i); k != skip {
			fmt.Fprintf(&sb, "%s = %g\n", k, v)
		}
	}
	for i := 0; i < 18; i++ {
		if k := fmt.Sprintf("c%d", i); k != skip {
			fmt.Fprintf(&sb, "%s = 0\n", k)
		}
	}
	return sb.String()
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newTestRegistry(t *testing.T) (*Registry, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	root := t.TempDir()
	paths := Paths{
		BuiltinDir: filepath.Join(root, "data"),
		UserDir:    filepath.Join(root, "user"),
		SimMode:    "normal",
	}
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewRegistry(paths, logger), &logs
}

func TestLateralKey(t *testing.T) {
	want := []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10", "a111", "a112", "a12", "a13"}
	for i, k := range want {
		assert.Equal(t, k, lateralKey(i), "index %d", i)
	}
}

func TestLoadTireModel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "slick.tire"), tireBody(""))

	tm, err := LoadTireModel(dir, "slick.tire")
	require.NoError(t, err)

	assert.Equal(t, "slick", tm.Name)
	assert.Equal(t, 1.6, tm.Lateral[0])
	assert.Equal(t, 12.8, tm.Lateral[4])
	assert.Equal(t, -10.0, tm.Longitudinal[8])
	assert.InDelta(t, 0.319, tm.SigmaHat, 0.005)
	assert.InDelta(t, 8.62, tm.AlphaHat, 0.1)
}

func TestLoadTireModel_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "slick.tire"), tireBody(""))

	a, err := LoadTireModel(dir, "slick.tire")
	require.NoError(t, err)
	b, err := LoadTireModel(dir, "slick.tire")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLoadTireModel_MissingKey(t *testing.T) {
	for _, key := range []string{"a0", "a111", "a112", "a13", "b5", "b10", "c17"} {
		t.Run(key, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "bad.tire"), tireBody(key))

			_, err := LoadTireModel(dir, "bad.tire")
			require.ErrorIs(t, err, ErrMissingKey)
			assert.Contains(t, err.Error(), "params."+key)
		})
	}
}

func TestLoadTireModel_BadValue(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.tire"), strings.Replace(tireBody(""), "b3 = 0", "b3 = soft", 1))

	_, err := LoadTireModel(dir, "bad.tire")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestLoadTireModel_NoFile(t *testing.T) {
	_, err := LoadTireModel(t.TempDir(), "ghost.tire")
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestTireModel_ZeroCoefficientsAreSafe(t *testing.T) {
	var tm TireModel
	assert.Equal(t, 0.0, tm.Fx(0.1, 4))
	assert.Equal(t, 0.0, tm.Fy(5, 4, 0))
}

func TestTireModel_ForceIsOddInSlip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "slick.tire"), tireBody(""))
	tm, err := LoadTireModel(dir, "slick.tire")
	require.NoError(t, err)

	assert.InDelta(t, -tm.Fx(0.1, 4), tm.Fx(-0.1, 4), 1e-9)
	assert.InDelta(t, -tm.Fy(3, 4, 0), tm.Fy(-3, 4, 0), 1e-9)
	assert.Greater(t, tm.Fx(tm.SigmaHat, 4), tm.Fx(0.9, 4))
}

func TestLoadAllTireModels_SkipsBadFiles(t *testing.T) {
	r, logs := newTestRegistry(t)
	dir := r.Paths().builtin("tires")
	writeFile(t, filepath.Join(dir, "rain.tire"), tireBody(""))
	writeFile(t, filepath.Join(dir, "broken.tire"), tireBody("c4"))
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a tire")

	r.LoadAllTireModels()

	assert.Equal(t, 1, r.TireCount())
	_, ok := r.TireID("broken")
	assert.False(t, ok, "partial tire must not be registered")
	assert.Contains(t, logs.String(), "Error loading tire")
	assert.Contains(t, logs.String(), "broken.tire")
}

func TestLoadAllTireModels_UserShadowsBuiltin(t *testing.T) {
	r, _ := newTestRegistry(t)
	writeFile(t, filepath.Join(r.Paths().builtin("tires"), "slick.tire"), tireBody(""))
	writeFile(t, filepath.Join(r.Paths().builtin("tires"), "rain.tire"), tireBody(""))
	writeFile(t, filepath.Join(r.Paths().user("tires"), "slick.tire"),
		strings.Replace(tireBody(""), "a0 = 1.6", "a0 = 1.4", 1))

	r.LoadAllTireModels()

	assert.Equal(t, 3, r.TireCount())
	id, ok := r.TireID("slick")
	require.True(t, ok)
	assert.Equal(t, OriginUser, r.Tire(id).Origin)
	assert.Equal(t, 1.4, r.Tire(id).Lateral[0])

	def, ok := r.DefaultTire()
	require.True(t, ok)
	assert.Equal(t, id, def, "last loaded tire is the default")
}

func TestLoadAllTireModels_ClearsOnReload(t *testing.T) {
	r, _ := newTestRegistry(t)
	path := filepath.Join(r.Paths().builtin("tires"), "slick.tire")
	writeFile(t, path, tireBody(""))
	r.LoadAllTireModels()
	require.Equal(t, 1, r.TireCount())

	require.NoError(t, os.Remove(path))
	r.LoadAllTireModels()

	assert.Equal(t, 0, r.TireCount())
	_, ok := r.DefaultTire()
	assert.False(t, ok)
}

const scenarioSurfaces = `
[asphalt]
ID = 1
BumpWaveLength = 10
BumpAmplitude = 0.01
FrictionTread = 1.0
RollingDrag = 50
Tire = slick

[grass]
ID = 2
BumpWaveLength = 20
BumpAmplitude = 0.05
BumpWaveLength2 = 4
BumpAmplitude2 = 0.02
FrictionTread = 0.7
FrictionX = 0.9
FrictionY = 0.8
RollResistance = 2
RollingDrag = 400
`

func scenarioRegistry(t *testing.T) (*Registry, *bytes.Buffer) {
	t.Helper()
	r, logs := newTestRegistry(t)
	writeFile(t, filepath.Join(r.Paths().builtin("tires"), "rain.tire"), tireBody(""))
	writeFile(t, filepath.Join(r.Paths().builtin("tires"), "slick.tire"), tireBody(""))
	writeFile(t, r.Paths().builtin(surfacesFile), scenarioSurfaces)
	r.LoadAllTireModels()
	return r, logs
}

func TestLoadAllSurfaces_Scenario(t *testing.T) {
	r, logs := scenarioRegistry(t)

	require.NoError(t, r.LoadAllSurfaces("slick"))
	assert.Equal(t, 2, r.SurfaceCount())

	slick, ok := r.TireID("slick")
	require.True(t, ok)

	gid, ok := r.SurfaceID("grass")
	require.True(t, ok)
	grass := r.Surface(gid)
	assert.Equal(t, "slick", grass.TireName)
	assert.Equal(t, slick, grass.Tire)
	assert.Equal(t, SurfaceGrass, grass.Type)
	assert.Equal(t, 4.0, grass.BumpWaveLength2)
	assert.Equal(t, 0.9, grass.FrictionX)
	assert.Equal(t, 2.0, grass.RollResistance)
	assert.Contains(t, logs.String(), "Surface has no tire")

	aid, ok := r.SurfaceID("asphalt")
	require.True(t, ok)
	asphalt := r.Surface(aid)
	assert.Equal(t, slick, asphalt.Tire)
	assert.Equal(t, 0.0, asphalt.FrictionX, "optional values default to zero")
	assert.False(t, asphalt.Type.Loose())
	assert.True(t, grass.Type.Loose())

	_, ok = r.SurfaceID("ice")
	assert.False(t, ok)
	assert.Nil(t, r.Surface(SurfaceID(7)))
}

func TestLoadAllSurfaces_EmptyTrackDefaultUsesRegistryDefault(t *testing.T) {
	r, _ := scenarioRegistry(t)

	require.NoError(t, r.LoadAllSurfaces(""))

	gid, _ := r.SurfaceID("grass")
	def, _ := r.DefaultTire()
	assert.Equal(t, def, r.Surface(gid).Tire)
	assert.Equal(t, "slick", r.Surface(gid).TireName)
}

func TestLoadAllSurfaces_UnknownTireFallsBackToZero(t *testing.T) {
	r, logs := scenarioRegistry(t)
	writeFile(t, r.Paths().builtin(surfacesFile), strings.Replace(scenarioSurfaces, "Tire = slick", "Tire = wet", 1))

	require.NoError(t, r.LoadAllSurfaces("slick"))

	aid, _ := r.SurfaceID("asphalt")
	assert.Equal(t, TireID(0), r.Surface(aid).Tire)
	assert.Equal(t, "wet", r.Surface(aid).TireName)
	assert.Contains(t, logs.String(), "Surface tire not found")
	assert.Contains(t, logs.String(), "tire=wet")
}

func TestLoadAllSurfaces_MissingRequiredKeyFailsWholeLoad(t *testing.T) {
	for _, key := range []string{"ID", "BumpWaveLength", "BumpAmplitude", "FrictionTread", "RollingDrag"} {
		t.Run(key, func(t *testing.T) {
			r, _ := scenarioRegistry(t)
			body := strings.Replace(scenarioSurfaces, "\n"+key+" = ", "\n; ", 1)
			writeFile(t, r.Paths().builtin(surfacesFile), body)

			err := r.LoadAllSurfaces("slick")
			require.ErrorIs(t, err, ErrMissingKey)
			assert.Equal(t, 0, r.SurfaceCount())
			_, ok := r.SurfaceID("grass")
			assert.False(t, ok)
		})
	}
}

func TestLoadAllSurfaces_UserFileReplacesBuiltin(t *testing.T) {
	r, logs := scenarioRegistry(t)
	writeFile(t, r.Paths().user(surfacesFile), `
[ice]
ID = 0
BumpWaveLength = 1
BumpAmplitude = 0
FrictionTread = 0.1
RollingDrag = 10
Tire = rain
`)

	require.NoError(t, r.LoadAllSurfaces("slick"))

	assert.Equal(t, 1, r.SurfaceCount())
	_, ok := r.SurfaceID("asphalt")
	assert.False(t, ok, "user surfaces are not merged with builtin")
	id, ok := r.SurfaceID("ice")
	require.True(t, ok)
	rain, _ := r.TireID("rain")
	assert.Equal(t, rain, r.Surface(id).Tire)
	assert.Contains(t, logs.String(), "Using user surfaces")
}

func TestLoadAllSurfaces_KeysBeforeFirstSection(t *testing.T) {
	r, logs := scenarioRegistry(t)
	writeFile(t, r.Paths().builtin(surfacesFile), "Version = 2\n"+scenarioSurfaces)

	require.NoError(t, r.LoadAllSurfaces("slick"))
	assert.Equal(t, 2, r.SurfaceCount())
	_, ok := r.SurfaceID("DEFAULT")
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "Ignoring keys outside a surface section")
}

func TestLoadAllSurfaces_NoFile(t *testing.T) {
	r, _ := newTestRegistry(t)
	err := r.LoadAllSurfaces("")
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestLoadAllSuspensionCurves(t *testing.T) {
	r, logs := newTestRegistry(t)
	dir := r.Paths().builtin("susp")
	writeFile(t, filepath.Join(dir, "soft.susp"), `
[suspension]
damper-factor-02 = 0.5, 1.2
damper-factor-01 = 0.0, 1.0
damper-factor-03 = 1.0, 1.5
spring-factor-01 = 0.0, 1.0
spring-factor-02 = 0.8, 2.0
`)
	writeFile(t, filepath.Join(dir, "broken.susp"), "[suspension]\nspring-factor-01 = 0.0\n")

	r.LoadAllSuspensionCurves()

	assert.Equal(t, 1, r.SuspensionCount())
	assert.Contains(t, logs.String(), "broken.susp")

	id, ok := r.SuspensionID("soft")
	require.True(t, ok)
	p := r.Suspension(id)
	assert.Equal(t, Curve{{0, 1}, {0.5, 1.2}, {1, 1.5}}, p.Damper)
	assert.Equal(t, Curve{{0, 1}, {0.8, 2}}, p.Spring)
	for i := 1; i < len(p.Damper); i++ {
		assert.LessOrEqual(t, p.Damper[i-1].X, p.Damper[i].X)
	}

	_, ok = r.SuspensionID("stiff")
	assert.False(t, ok)
}

func TestCurveAt(t *testing.T) {
	c := Curve{{0, 1}, {0.5, 2}, {1, 4}}

	assert.Equal(t, 1.0, c.At(-1))
	assert.Equal(t, 1.5, c.At(0.25))
	assert.Equal(t, 2.0, c.At(0.5))
	assert.Equal(t, 3.0, c.At(0.75))
	assert.Equal(t, 4.0, c.At(3))
	assert.Equal(t, 1.0, Curve(nil).At(0.3))
}

func TestReloadSimData(t *testing.T) {
	r, logs := scenarioRegistry(t)
	writeFile(t, filepath.Join(r.Paths().builtin("susp"), "soft.susp"), "[suspension]\nspring-factor-01 = 0, 1\n")

	require.NoError(t, r.ReloadSimData("slick"))

	assert.Contains(t, logs.String(), "Carsim loaded")
	assert.Contains(t, logs.String(), "tires=2")
	assert.Contains(t, logs.String(), "surfaces=2")
	assert.Contains(t, logs.String(), "suspensions=1")
}

func TestPickReferenceTire(t *testing.T) {
	r, logs := scenarioRegistry(t)

	slick, _ := r.TireID("slick")
	assert.Equal(t, slick, r.PickReferenceTire("slick"))
	assert.Equal(t, slick, r.ReferenceTire())

	assert.Equal(t, TireID(0), r.PickReferenceTire("wet"))
	assert.Equal(t, TireID(0), r.ReferenceTire())
	assert.Contains(t, logs.String(), "Reference tire not found")
}
