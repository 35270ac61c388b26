package physics

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fallingBody struct {
	pos, vel mgl64.Vec3
	calls    int
	set      FluidSet
}

func (b *fallingBody) Integrate(h float64) {
	b.calls++
	b.vel = b.vel.Add(mgl64.Vec3{0, 0, -9.81}.Mul(h))
	b.pos = b.pos.Add(b.vel.Mul(h))
}

func (b *fallingBody) FluidProbes() []Probe {
	return []Probe{{Pos: b.pos, Set: &b.set}, {Pos: b.pos}}
}

func TestFluidSet(t *testing.T) {
	var s FluidSet
	s.Add(3)
	s.Add(3)
	s.Add(5)

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(5))
	assert.False(t, s.Contains(4))

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains(3))
}

func TestFluidContains(t *testing.T) {
	f := Fluid{Min: mgl64.Vec3{0, 0, -1}, Max: mgl64.Vec3{10, 10, 0}}

	assert.True(t, f.Contains(mgl64.Vec3{5, 5, -0.5}))
	assert.True(t, f.Contains(mgl64.Vec3{0, 10, 0}))
	assert.False(t, f.Contains(mgl64.Vec3{5, 5, 0.1}))
	assert.False(t, f.Contains(mgl64.Vec3{-1, 5, -0.5}))
}

func TestWorldStep_Substeps(t *testing.T) {
	w := NewWorld(100)
	b := &fallingBody{}
	w.AddBody(b)

	require.Equal(t, 10*time.Millisecond, w.Substep())

	assert.Equal(t, 0, w.Step(5*time.Millisecond, 4), "half a substep is carried")
	assert.Equal(t, 1, w.Step(5*time.Millisecond, 4))
	assert.Equal(t, 3, w.Step(30*time.Millisecond, 4))
	assert.Equal(t, 4, b.calls)
	assert.Equal(t, uint64(4), w.TotalSteps())
}

func TestWorldStep_BoundedSubsteps(t *testing.T) {
	w := NewWorld(100)
	b := &fallingBody{}
	w.AddBody(b)

	assert.Equal(t, 2, w.Step(time.Second, 2))
	assert.Equal(t, 2, b.calls)

	assert.Equal(t, 0, w.Step(time.Millisecond, 2), "excess beyond the cap is dropped")
}

func TestWorldStep_IgnoresZeroAndNegative(t *testing.T) {
	w := NewWorld(100)
	b := &fallingBody{}
	w.AddBody(b)

	assert.Equal(t, 0, w.Step(0, 4))
	assert.Equal(t, 0, w.Step(-time.Second, 4))
	assert.Equal(t, 0, w.Step(time.Second, 0))
	assert.Equal(t, 0, b.calls)
}

func TestWorldStep_ProbesFluids(t *testing.T) {
	w := NewWorld(100)
	b := &fallingBody{pos: mgl64.Vec3{1, 1, 0.02}}
	w.AddBody(b)
	w.AddImmersible(b)
	w.AddFluid(Fluid{ID: 7, Name: "water", Min: mgl64.Vec3{0, 0, -5}, Max: mgl64.Vec3{2, 2, 0}})

	w.Step(10*time.Millisecond, 1)
	assert.False(t, b.set.Contains(7))

	w.Step(100*time.Millisecond, 10)
	assert.True(t, b.set.Contains(7))
	assert.Len(t, w.Fluids(), 1)
}

func TestWorldClear(t *testing.T) {
	w := NewWorld(0)
	b := &fallingBody{}
	w.AddBody(b)
	w.AddFluid(Fluid{ID: 1})
	w.Step(5*time.Millisecond, 1)

	w.Clear()

	assert.Empty(t, w.Fluids())
	assert.Equal(t, 0, w.Step(12*time.Millisecond, 1), "accumulator reset with the bodies")
	assert.Equal(t, 0, b.calls)
}
