// Package vehicle owns the live vehicles of a session.
package vehicle

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/stuntsim/simcore/internal/carsim"
	"github.com/stuntsim/simcore/internal/input"
	"github.com/stuntsim/simcore/internal/physics"
)

// Dynamics is the per-car simulation model.
type Dynamics interface {
	// Update advances the model by dt seconds.
	Update(dt float64)
	// HandleInputs applies a control vector for the next dt seconds.
	HandleInputs(c input.Vector, dt float64)
	// Attach binds the physics data the car drives on. Any argument may be
	// nil when the registry has no matching entry.
	Attach(surface *carsim.SurfaceModel, tire *carsim.TireModel, susp *carsim.SuspensionProfile)

	Position() mgl64.Vec3
	Orientation() mgl64.Quat
	Velocity() mgl64.Vec3
	// SpeedDir is the signed speed along the heading.
	SpeedDir() float64
	WheelContact(i int) bool
	WheelPosition(i int) mgl64.Vec3
	// Feedback is the raw steering force for force feedback.
	Feedback() float64

	Gear() int
	SetGear(g int)
	// SetBrake holds the brake at pct percent until changed, on top of
	// driver input.
	SetBrake(pct float64)
	BoostFuel() float64
	SetBoostFuel(v float64)
}

// CarSpec names the car and the physics data it should bind to.
type CarSpec struct {
	Name       string
	Surface    string
	Tire       string // empty uses the surface tire
	Suspension string
}

// Vehicle is one live car.
type Vehicle struct {
	ID   int
	Name string
	Dyn  Dynamics

	ChassisFluids physics.FluidSet
	WheelFluids   [4]physics.FluidSet
	VelPrev       mgl64.Vec3
	Controls      input.Vector

	Surface    carsim.SurfaceID
	Tire       carsim.TireID
	Suspension carsim.SuspensionID
	// Asphalt is true when the bound surface steers like pavement.
	Asphalt bool

	spec CarSpec
}

// Spec returns the names the car was loaded with.
func (v *Vehicle) Spec() CarSpec { return v.spec }

// ResetTransient clears fluid contact for the chassis and every wheel and
// records the current velocity as the previous one.
func (v *Vehicle) ResetTransient() {
	v.ChassisFluids.Clear()
	for i := range v.WheelFluids {
		v.WheelFluids[i].Clear()
	}
	v.VelPrev = v.Dyn.Velocity()
}

// InFluid reports whether the chassis or any wheel is in a fluid.
func (v *Vehicle) InFluid() bool {
	if v.ChassisFluids.Len() > 0 {
		return true
	}
	for i := range v.WheelFluids {
		if v.WheelFluids[i].Len() > 0 {
			return true
		}
	}
	return false
}

// FluidProbes implements physics.Immersible.
func (v *Vehicle) FluidProbes() []physics.Probe {
	probes := make([]physics.Probe, 0, 5)
	probes = append(probes, physics.Probe{Pos: v.Dyn.Position(), Set: &v.ChassisFluids})
	for i := range v.WheelFluids {
		probes = append(probes, physics.Probe{Pos: v.Dyn.WheelPosition(i), Set: &v.WheelFluids[i]})
	}
	return probes
}

// Heading returns the car's forward axis in world space.
func (v *Vehicle) Heading() mgl64.Vec3 {
	return v.Dyn.Orientation().Rotate(mgl64.Vec3{1, 0, 0})
}

// WheelContacts counts wheels touching the ground.
func (v *Vehicle) WheelContacts() int {
	n := 0
	for i := 0; i < 4; i++ {
		if v.Dyn.WheelContact(i) {
			n++
		}
	}
	return n
}

// Sample is a point-in-time view of a vehicle for telemetry.
type Sample struct {
	ID       int
	Car      string
	Position mgl64.Vec3
	Speed    float64
	Gear     int
	Boost    float64
	InFluid  bool
	Controls input.Vector

	Drifting   bool
	DriftScore float64
}

// Sample captures the vehicle's current state. Drift fields are left for
// the caller, which owns the timer.
func (v *Vehicle) Sample() Sample {
	return Sample{
		ID:       v.ID,
		Car:      v.Name,
		Position: v.Dyn.Position(),
		Speed:    v.Dyn.Velocity().Len(),
		Gear:     v.Dyn.Gear(),
		Boost:    v.Dyn.BoostFuel(),
		InFluid:  v.InFluid(),
		Controls: v.Controls,
	}
}
