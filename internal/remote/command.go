// Package remote runs the loopback command service. Clients send one
// command per websocket text message and always get "OK" back; accepted
// commands are queued for the simulation to apply at the next tick.
package remote

import "math"

// Command is one request from a control client.
type Command string

const (
	Brake100 Command = "brake100"
	Brake0   Command = "brake0"
	BoostMax Command = "boostmax"
	Boost2   Command = "boost2"
)

// Commands lists every command the service accepts.
var Commands = []Command{Brake100, Brake0, BoostMax, Boost2}

// Known reports whether name is one of Commands.
func Known(name string) bool {
	for _, c := range Commands {
		if string(c) == name {
			return true
		}
	}
	return false
}

// Target is the part of a vehicle a command may change.
type Target interface {
	SetBrake(pct float64)
	BoostFuel() float64
	SetBoostFuel(v float64)
}

// Apply performs c on t. boostMax caps the boost fuel.
func (c Command) Apply(t Target, boostMax float64) {
	switch c {
	case Brake100:
		t.SetBrake(100)
	case Brake0:
		t.SetBrake(0)
	case BoostMax:
		t.SetBoostFuel(boostMax)
	case Boost2:
		t.SetBoostFuel(math.Min(t.BoostFuel()+2, boostMax))
	}
}
