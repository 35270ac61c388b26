package physics

import (
	"time"
)

// World is a fixed-substep integrator. Time passed to Step accumulates and
// is consumed in whole substeps of the configured period; at most
// maxSubsteps run per call and any excess is dropped.
type World struct {
	substep time.Duration
	acc     time.Duration

	bodies     []Body
	immersed   []Immersible
	fluids     []Fluid
	totalSteps uint64
}

// NewWorld returns a world integrating at hz internal steps per second.
func NewWorld(hz float64) *World {
	if hz <= 0 {
		hz = 60
	}
	return &World{substep: time.Duration(float64(time.Second) / hz)}
}

// Substep returns the internal step period.
func (w *World) Substep() time.Duration { return w.substep }

// AddBody registers b for integration.
func (w *World) AddBody(b Body) { w.bodies = append(w.bodies, b) }

// AddImmersible registers i for fluid probing.
func (w *World) AddImmersible(i Immersible) { w.immersed = append(w.immersed, i) }

// AddFluid adds a fluid volume.
func (w *World) AddFluid(f Fluid) { w.fluids = append(w.fluids, f) }

// Fluids returns the registered fluid volumes.
func (w *World) Fluids() []Fluid { return w.fluids }

// TotalSteps returns the number of internal steps run since creation.
func (w *World) TotalSteps() uint64 { return w.totalSteps }

// Clear removes every body, probe and fluid and resets the accumulator.
func (w *World) Clear() {
	w.bodies = nil
	w.immersed = nil
	w.fluids = nil
	w.acc = 0
}

// Step implements Stepper.
func (w *World) Step(dt time.Duration, maxSubsteps int) int {
	if dt <= 0 || maxSubsteps <= 0 {
		return 0
	}
	w.acc += dt

	h := w.substep.Seconds()
	n := 0
	for w.acc >= w.substep && n < maxSubsteps {
		for _, b := range w.bodies {
			b.Integrate(h)
		}
		w.acc -= w.substep
		n++
	}
	if n == maxSubsteps && w.acc >= w.substep {
		w.acc = 0
	}
	w.totalSteps += uint64(n)

	w.probe()
	return n
}

func (w *World) probe() {
	if len(w.fluids) == 0 {
		return
	}
	for _, im := range w.immersed {
		for _, p := range im.FluidProbes() {
			if p.Set == nil {
				continue
			}
			for _, f := range w.fluids {
				if f.Contains(p.Pos) {
					p.Set.Add(f.ID)
				}
			}
		}
	}
}
