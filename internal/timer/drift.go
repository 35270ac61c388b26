package timer

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	driftMinSpeed      = 10.0
	driftEnterAngle    = 0.2
	driftContinueAngle = 0.1
	minMagnitude       = 0.001
)

// DriftInput is what the classifier needs from a car for one tick.
type DriftInput struct {
	Heading       mgl64.Vec3
	Velocity      mgl64.Vec3
	WheelContacts int
	Position      mgl64.Vec3
}

// DriftResult is the classification of one tick.
type DriftResult struct {
	OnTrack  bool
	Drifting bool
	SpinOut  bool
	Angle    float64
	Speed    float64
}

// DriftState is the running drift score of one car.
type DriftState struct {
	Drifting  bool
	ThisScore float64
	MaxAngle  float64
	MaxSpeed  float64

	// Score is the committed total.
	Score float64
	// Count is the number of drifts that were committed.
	Count int
	// BestAngle and BestSpeed are session maxima over every drift.
	BestAngle float64
	BestSpeed float64

	Path []mgl64.Vec2
}

// Classify decides whether a car is drifting. Heading and velocity are
// compared in the horizontal plane. wasDrifting lowers the entry angle so
// a drift does not flicker at the threshold.
func Classify(in DriftInput, wasDrifting bool) DriftResult {
	heading := mgl64.Vec3{in.Heading.X(), in.Heading.Y(), 0}
	vel := mgl64.Vec3{in.Velocity.X(), in.Velocity.Y(), 0}

	r := DriftResult{
		OnTrack: in.WheelContacts > 1,
		Speed:   vel.Len(),
	}

	if mag := heading.Len() * vel.Len(); mag > minMagnitude {
		cos := heading.Dot(vel) / mag
		r.Angle = math.Acos(math.Max(-1, math.Min(1, cos)))
	}

	if r.OnTrack && r.Speed > driftMinSpeed {
		threshold := driftEnterAngle
		if wasDrifting {
			threshold = driftContinueAngle
		}
		r.Drifting = r.Angle > threshold && r.Angle <= math.Pi/2
		r.SpinOut = r.Angle > math.Pi/2
	}
	return r
}

// UpdateDrift classifies car id for a tick of dt seconds and updates its
// score. When a drift ends it is committed with an angle bonus, unless the
// car left the track or spun out.
func (t *Timer) UpdateDrift(id int, in DriftInput, dt float64) DriftResult {
	c, ok := t.Car(id)
	if !ok {
		return Classify(in, false)
	}
	d := &c.Drift
	r := Classify(in, d.Drifting)

	if r.Drifting {
		d.ThisScore += dt * r.Speed
		d.MaxAngle = max(d.MaxAngle, r.Angle)
		d.MaxSpeed = max(d.MaxSpeed, r.Speed)
		if dt > 0 && len(d.Path) < maxPathPoints {
			d.Path = append(d.Path, mgl64.Vec2{in.Position.X(), in.Position.Y()})
		}
	}

	d.setDrifting(r.Drifting, r.OnTrack && !r.SpinOut)
	return r
}

func (d *DriftState) setDrifting(drifting, count bool) {
	if d.Drifting && !drifting {
		if count && d.ThisScore > 0 {
			d.Score += d.ThisScore + d.ThisScore*d.MaxAngle/(math.Pi/2)
			d.Count++
			d.BestAngle = max(d.BestAngle, d.MaxAngle)
			d.BestSpeed = max(d.BestSpeed, d.MaxSpeed)
		}
		d.ThisScore = 0
		d.MaxAngle = 0
		d.MaxSpeed = 0
	}
	d.Drifting = drifting
}

// CommitDrifts ends every open drift and adds it to its car's score. An open
// drift was on track and not spun out at its last tick, so it always counts.
func (t *Timer) CommitDrifts() {
	for _, c := range t.cars {
		c.Drift.setDrifting(false, true)
	}
}

// IsDrifting reports the last classification for car id.
func (t *Timer) IsDrifting(id int) bool {
	c, ok := t.Car(id)
	return ok && c.Drift.Drifting
}
