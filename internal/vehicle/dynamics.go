package vehicle

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/stuntsim/simcore/internal/carsim"
	"github.com/stuntsim/simcore/internal/input"
)

const (
	gravity = 9.81

	defaultMass      = 1200.0
	defaultWheelbase = 2.6
	defaultTrack     = 1.5
	maxSteerAngle    = 0.5 // rad
	engineForce      = 6000.0
	brakeForce       = 12000.0
	boostForce       = 3000.0
	boostBurn        = 1.0 // fuel per second
	aeroDrag         = 0.4
	pneumaticTrail   = 0.03
	lowSpeed         = 0.5
)

// gearRatios scale engine force; index 0 is reverse, 1 neutral.
var gearRatios = []float64{-1.2, 0, 1.6, 1.2, 0.95, 0.75, 0.6}

// SimpleDynamics is a planar single-body car: forward drive and braking,
// kinematic steering and Pacejka lateral grip from the bound tire. It
// stands in for a full dynamics model in the headless runner and tests.
type SimpleDynamics struct {
	Mass      float64
	Wheelbase float64

	pos     mgl64.Vec3
	yaw     float64
	vel     mgl64.Vec3
	gear    int // -1 reverse, 0 neutral, 1.. forward
	latF    float64
	control input.Vector

	brakeHold float64
	boostFuel float64

	surface *carsim.SurfaceModel
	tire    *carsim.TireModel
	susp    *carsim.SuspensionProfile
}

// NewSimpleDynamics places a car at pos facing yaw radians from +X.
func NewSimpleDynamics(pos mgl64.Vec3, yaw float64) *SimpleDynamics {
	return &SimpleDynamics{
		Mass:      defaultMass,
		Wheelbase: defaultWheelbase,
		pos:       pos,
		yaw:       yaw,
	}
}

// SetVelocity overrides the current velocity.
func (d *SimpleDynamics) SetVelocity(v mgl64.Vec3) { d.vel = v }

// Attach implements Dynamics.
func (d *SimpleDynamics) Attach(surface *carsim.SurfaceModel, tire *carsim.TireModel, susp *carsim.SuspensionProfile) {
	d.surface, d.tire, d.susp = surface, tire, susp
}

func (d *SimpleDynamics) heading() mgl64.Vec3 {
	return mgl64.Vec3{math.Cos(d.yaw), math.Sin(d.yaw), 0}
}

func (d *SimpleDynamics) left() mgl64.Vec3 {
	return mgl64.Vec3{-math.Sin(d.yaw), math.Cos(d.yaw), 0}
}

func (d *SimpleDynamics) friction() float64 {
	if d.surface == nil || d.surface.FrictionTread == 0 {
		return 1
	}
	return d.surface.FrictionTread
}

// Update implements Dynamics.
func (d *SimpleDynamics) Update(dt float64) {
	if dt <= 0 {
		return
	}
	fwd, lft := d.heading(), d.left()
	vx, vy := d.vel.Dot(fwd), d.vel.Dot(lft)

	// drive
	fx := d.control.Throttle * engineForce * d.ratio()
	if d.control.Boost > 0 && d.boostFuel > 0 {
		fx += boostForce * d.control.Boost
		d.boostFuel = math.Max(0, d.boostFuel-boostBurn*dt)
	}
	brake := math.Max(d.control.Brake, d.brakeHold/100)
	if math.Abs(vx) > lowSpeed {
		fx -= math.Copysign(brake*brakeForce*d.friction(), vx)
	} else if brake > 0 {
		vx = 0
	}
	if d.surface != nil {
		fx -= math.Copysign(d.surface.RollingDrag*math.Abs(vx)/100, vx)
	}
	fx -= aeroDrag * vx * math.Abs(vx)

	// grip
	d.latF = d.lateralForce(vx, vy)
	dvy := d.latF / d.Mass * dt
	if math.Abs(dvy) > math.Abs(vy) {
		dvy = -vy
	}

	vx += fx / d.Mass * dt
	vy += dvy
	d.vel = fwd.Mul(vx).Add(lft.Mul(vy))

	steer := d.control.Steer * maxSteerAngle
	d.yaw += vx / d.Wheelbase * math.Tan(steer) * dt
	d.yaw = math.Remainder(d.yaw, 2*math.Pi)

	d.pos = d.pos.Add(d.vel.Mul(dt))
}

// lateralForce returns the total side force opposing sideways slip.
func (d *SimpleDynamics) lateralForce(vx, vy float64) float64 {
	if math.Abs(vx) < lowSpeed && math.Abs(vy) < lowSpeed {
		return -vy * d.Mass * 10
	}
	alpha := mgl64.RadToDeg(math.Atan2(vy, math.Abs(vx)))
	load := d.Mass * gravity / 4 / 1000 // kN per wheel
	if d.susp != nil {
		load *= d.susp.Spring.At(0)
	}
	var fy float64
	if d.tire != nil {
		fy = d.tire.Fy(alpha, load, 0)
	} else {
		fy = 1000 * load * alpha / 8
		fy = math.Max(-1000*load, math.Min(1000*load, fy))
	}
	return -4 * fy * d.friction()
}

func (d *SimpleDynamics) ratio() float64 {
	i := d.gear + 1
	if i < 0 || i >= len(gearRatios) {
		return 0
	}
	return gearRatios[i]
}

// HandleInputs implements Dynamics.
func (d *SimpleDynamics) HandleInputs(c input.Vector, dt float64) {
	d.control = c
	switch {
	case c.ShiftUp && d.gear < len(gearRatios)-2:
		d.gear++
	case c.ShiftDown && d.gear > -1:
		d.gear--
	}
}

func (d *SimpleDynamics) Position() mgl64.Vec3 { return d.pos }

func (d *SimpleDynamics) Orientation() mgl64.Quat {
	return mgl64.QuatRotate(d.yaw, mgl64.Vec3{0, 0, 1})
}

func (d *SimpleDynamics) Velocity() mgl64.Vec3 { return d.vel }

func (d *SimpleDynamics) SpeedDir() float64 { return d.vel.Dot(d.heading()) }

// WheelContact implements Dynamics. The model is planar so every wheel is
// always on the ground.
func (d *SimpleDynamics) WheelContact(i int) bool { return i >= 0 && i < 4 }

// WheelPosition returns wheel i in FL, FR, RL, RR order.
func (d *SimpleDynamics) WheelPosition(i int) mgl64.Vec3 {
	fwd, lft := d.heading(), d.left()
	x := d.Wheelbase / 2
	if i >= 2 {
		x = -x
	}
	y := defaultTrack / 2
	if i%2 == 1 {
		y = -y
	}
	return d.pos.Add(fwd.Mul(x)).Add(lft.Mul(y))
}

func (d *SimpleDynamics) Feedback() float64 { return d.latF * pneumaticTrail }

func (d *SimpleDynamics) Gear() int { return d.gear }

func (d *SimpleDynamics) SetGear(g int) { d.gear = g }

func (d *SimpleDynamics) SetBrake(pct float64) { d.brakeHold = math.Max(0, math.Min(100, pct)) }

func (d *SimpleDynamics) BrakeHold() float64 { return d.brakeHold }

func (d *SimpleDynamics) BoostFuel() float64 { return d.boostFuel }

func (d *SimpleDynamics) SetBoostFuel(v float64) { d.boostFuel = math.Max(0, v) }
