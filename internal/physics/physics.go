// Package physics defines the rigid-body stepper the simulation consumes
// and a small reference world used by the headless runner and tests.
package physics

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Stepper advances a world by dt, splitting it into at most maxSubsteps
// internal steps. It returns the number of internal steps taken.
type Stepper interface {
	Step(dt time.Duration, maxSubsteps int) int
}

// Body is integrated once per internal step.
type Body interface {
	Integrate(h float64)
}

// Probe is a point tested against fluid volumes after a step. Volumes
// containing Pos are added to Set.
type Probe struct {
	Pos mgl64.Vec3
	Set *FluidSet
}

// Immersible is implemented by anything that tracks fluid contact.
type Immersible interface {
	FluidProbes() []Probe
}

// Fluid is an axis aligned volume of water, mud or similar.
type Fluid struct {
	ID       int
	Name     string
	Min, Max mgl64.Vec3
	Density  float64
}

// Contains reports whether p lies inside the volume.
func (f Fluid) Contains(p mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < f.Min[i] || p[i] > f.Max[i] {
			return false
		}
	}
	return true
}

// FluidSet is the set of fluid ids a probe is currently inside.
type FluidSet struct {
	ids []int
}

// Add inserts id if absent.
func (s *FluidSet) Add(id int) {
	if s.Contains(id) {
		return
	}
	s.ids = append(s.ids, id)
}

// Contains reports whether id is in the set.
func (s *FluidSet) Contains(id int) bool {
	for _, v := range s.ids {
		if v == id {
			return true
		}
	}
	return false
}

// Len returns the number of fluids in the set.
func (s *FluidSet) Len() int { return len(s.ids) }

// Clear empties the set, keeping its storage.
func (s *FluidSet) Clear() { s.ids = s.ids[:0] }
