package timer

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func atAngle(speed, angle float64) DriftInput {
	return DriftInput{
		Heading:       mgl64.Vec3{1, 0, 0},
		Velocity:      mgl64.Vec3{speed * math.Cos(angle), speed * math.Sin(angle), 0},
		WheelContacts: 4,
	}
}

func TestTimer_NoopUntilLoaded(t *testing.T) {
	tm := New()
	tm.Tick(0.1)
	assert.Equal(t, uint64(0), tm.Ticks())
	assert.False(t, tm.Loaded())
}

func TestTimer_Countdown(t *testing.T) {
	tm := New()
	tm.Load(0.25)
	id := tm.AddCar("ES")

	assert.True(t, tm.Waiting())
	for i := 0; i < 2; i++ {
		tm.Tick(0.1)
	}
	assert.True(t, tm.Waiting())
	assert.InDelta(t, 0.05, tm.Countdown(), 1e-12)

	tm.Tick(0.1)
	assert.False(t, tm.Waiting())
	assert.Equal(t, 0.0, tm.Countdown())

	c, _ := tm.Car(id)
	assert.Equal(t, 0.0, c.CurrentLap, "laps start after the countdown")

	tm.Tick(0.1)
	assert.InDelta(t, 0.1, c.CurrentLap, 1e-12)
	assert.Equal(t, uint64(4), tm.Ticks())
	assert.InDelta(t, 0.4, tm.Elapsed(), 1e-12)
}

func TestTimer_NoCountdown(t *testing.T) {
	tm := New()
	tm.Load(-1)
	assert.False(t, tm.Waiting())
}

func TestTimer_Laps(t *testing.T) {
	tm := New()
	tm.Load(0)
	id := tm.AddCar("ES")

	for _, ticks := range []int{30, 20, 25} {
		for i := 0; i < ticks; i++ {
			tm.Tick(1)
		}
		_, ok := tm.Lap(id)
		require.True(t, ok)
	}

	c, _ := tm.Car(id)
	assert.Equal(t, 3, c.Laps)
	assert.Equal(t, 25.0, c.LastLap)
	assert.Equal(t, 20.0, c.BestLap)
	assert.Equal(t, 0.0, c.CurrentLap)

	_, ok := tm.Lap(5)
	assert.False(t, ok)
}

func TestTimer_Unload(t *testing.T) {
	tm := New()
	tm.Load(3)
	tm.AddCar("ES")
	tm.Unload()

	assert.False(t, tm.Loaded())
	assert.False(t, tm.Waiting())
	assert.Equal(t, 0, tm.Cars())
	_, ok := tm.Car(0)
	assert.False(t, ok)
}

func TestClassify_Hysteresis(t *testing.T) {
	steps := []struct {
		angle float64
		want  bool
	}{
		{0, false},
		{0.15, false},
		{0.19, false},
		{0.21, true},
		{0.3, true},
		{0.19, true},
		{0.15, true},
		{0.11, true},
		{0.09, false},
		{0.15, false},
		{0.05, false},
	}

	drifting := false
	for i, s := range steps {
		r := Classify(atAngle(15, s.angle), drifting)
		assert.Equal(t, s.want, r.Drifting, "step %d angle %.2f", i, s.angle)
		assert.True(t, r.OnTrack)
		assert.InDelta(t, s.angle, r.Angle, 1e-9)
		drifting = r.Drifting
	}
}

func TestClassify_SpinOutOverridesDrift(t *testing.T) {
	r := Classify(atAngle(20, math.Pi/2+0.01), true)

	assert.False(t, r.Drifting)
	assert.True(t, r.SpinOut)
}

func TestClassify_DegenerateAngle(t *testing.T) {
	r := Classify(DriftInput{WheelContacts: 4}, false)
	assert.Equal(t, 0.0, r.Angle)
	assert.False(t, math.IsNaN(r.Angle))

	r = Classify(DriftInput{Heading: mgl64.Vec3{1, 0, 0}, Velocity: mgl64.Vec3{0, 0, -30}, WheelContacts: 4}, false)
	assert.Equal(t, 0.0, r.Angle, "vertical velocity is ignored")
}

func TestClassify_Gates(t *testing.T) {
	slow := Classify(atAngle(9, 0.5), false)
	assert.False(t, slow.Drifting)

	airborne := atAngle(20, 0.5)
	airborne.WheelContacts = 1
	r := Classify(airborne, false)
	assert.False(t, r.OnTrack)
	assert.False(t, r.Drifting)
	assert.False(t, r.SpinOut)

	two := atAngle(20, 0.5)
	two.WheelContacts = 2
	assert.True(t, Classify(two, false).Drifting)
}

func TestUpdateDrift_CommitsWithBonus(t *testing.T) {
	tm := New()
	tm.Load(0)
	id := tm.AddCar("ES")

	tm.UpdateDrift(id, atAngle(20, 0.5), 0.1)
	tm.UpdateDrift(id, atAngle(30, 0.4), 0.1)

	c, _ := tm.Car(id)
	assert.True(t, tm.IsDrifting(id))
	assert.InDelta(t, 5.0, c.Drift.ThisScore, 1e-9)
	assert.InDelta(t, 0.5, c.Drift.MaxAngle, 1e-9)
	assert.InDelta(t, 30.0, c.Drift.MaxSpeed, 1e-9)
	assert.Len(t, c.Drift.Path, 2)

	tm.UpdateDrift(id, atAngle(30, 0), 0.1)

	assert.False(t, tm.IsDrifting(id))
	assert.InDelta(t, 5+5*0.5/(math.Pi/2), c.Drift.Score, 1e-9)
	assert.Equal(t, 1, c.Drift.Count)
	assert.InDelta(t, 0.5, c.Drift.BestAngle, 1e-9)
	assert.Equal(t, 0.0, c.Drift.ThisScore)
	assert.Equal(t, 0.0, c.Drift.MaxAngle)
}

func TestUpdateDrift_SpinOutForfeits(t *testing.T) {
	tm := New()
	tm.Load(0)
	id := tm.AddCar("ES")

	tm.UpdateDrift(id, atAngle(20, 0.5), 0.1)
	r := tm.UpdateDrift(id, atAngle(20, 2), 0.1)

	require.True(t, r.SpinOut)
	c, _ := tm.Car(id)
	assert.Equal(t, 0.0, c.Drift.Score)
	assert.Equal(t, 0, c.Drift.Count)
	assert.Equal(t, 0.0, c.Drift.ThisScore)
}

func TestCommitDrifts(t *testing.T) {
	tm := New()
	tm.Load(0)
	open := tm.AddCar("ES")
	idle := tm.AddCar("GT")

	tm.UpdateDrift(open, atAngle(20, 0.5), 0.1)
	tm.UpdateDrift(idle, atAngle(20, 0), 0.1)
	tm.CommitDrifts()

	c, _ := tm.Car(open)
	assert.False(t, c.Drift.Drifting)
	assert.InDelta(t, 2+2*0.5/(math.Pi/2), c.Drift.Score, 1e-9)
	assert.Equal(t, 1, c.Drift.Count)
	assert.InDelta(t, 0.5, c.Drift.BestAngle, 1e-9)
	assert.Equal(t, 0.0, c.Drift.ThisScore)

	c, _ = tm.Car(idle)
	assert.Equal(t, 0, c.Drift.Count)

	tm.CommitDrifts()
	c, _ = tm.Car(open)
	assert.Equal(t, 1, c.Drift.Count, "committing twice counts once")
}

func TestUpdateDrift_ZeroDtScoresNothing(t *testing.T) {
	tm := New()
	tm.Load(0)
	id := tm.AddCar("ES")

	tm.UpdateDrift(id, atAngle(20, 0.5), 0)
	tm.UpdateDrift(id, atAngle(20, 0), 0)

	c, _ := tm.Car(id)
	assert.Equal(t, 0.0, c.Drift.Score)
	assert.Equal(t, 0, c.Drift.Count)
	assert.Empty(t, c.Drift.Path)
}

func TestUpdateDrift_UnknownCar(t *testing.T) {
	tm := New()
	r := tm.UpdateDrift(3, atAngle(20, 0.5), 0.1)
	assert.True(t, r.Drifting)
	assert.False(t, tm.IsDrifting(3))
}
