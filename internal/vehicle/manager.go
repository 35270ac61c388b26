package vehicle

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/stuntsim/simcore/internal/carsim"
)

// Handle identifies a vehicle in the manager.
type Handle int

// NoHandle is the zero value for "no vehicle".
const NoHandle Handle = -1

// Manager owns the vehicle collection. At most one vehicle is the locally
// controlled one; its handle is dropped before the collection is cleared.
// It is used only from the simulation goroutine.
type Manager struct {
	reg       *carsim.Registry
	logger    *slog.Logger
	autoshift bool

	cars   []*Vehicle
	local  Handle
	paused bool
}

// NewManager returns an empty manager resolving names through reg.
func NewManager(reg *carsim.Registry, logger *slog.Logger, autoshift bool) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{reg: reg, logger: logger, autoshift: autoshift, local: NoHandle}
}

// LoadCar appends a vehicle. When isLocal is set it becomes the locally
// controlled vehicle and, with autoshift, is put in first gear.
func (m *Manager) LoadCar(spec CarSpec, dyn Dynamics, isLocal bool) (Handle, error) {
	if dyn == nil {
		return NoHandle, errors.New("no dynamics for car")
	}
	if spec.Name == "" {
		return NoHandle, fmt.Errorf("car has no name")
	}

	v := &Vehicle{ID: len(m.cars), Name: spec.Name, Dyn: dyn, spec: spec}
	m.bind(v)
	v.VelPrev = dyn.Velocity()

	m.cars = append(m.cars, v)
	h := Handle(len(m.cars) - 1)
	m.logger.Info("Car loaded", "car", spec.Name, "id", v.ID, "local", isLocal)

	if isLocal {
		m.local = h
		if m.autoshift {
			dyn.SetGear(1)
		}
	}
	return h, nil
}

// bind resolves the car's data names and attaches the result to its
// dynamics. Unknown names fall back to id 0 with a warning.
func (m *Manager) bind(v *Vehicle) {
	spec := v.spec

	v.Surface = 0
	if id, ok := m.reg.SurfaceID(spec.Surface); ok {
		v.Surface = id
	} else if spec.Surface != "" {
		m.logger.Warn("Car surface not found, using 0", "car", spec.Name, "surface", spec.Surface)
	}
	surf := m.reg.Surface(v.Surface)

	switch {
	case spec.Tire == "" && surf != nil:
		v.Tire = surf.Tire
	default:
		id, ok := m.reg.TireID(spec.Tire)
		if !ok {
			id, _ = m.reg.DefaultTire()
			if spec.Tire != "" {
				m.logger.Warn("Car tire not found, using default", "car", spec.Name, "tire", spec.Tire)
			}
		}
		v.Tire = id
	}

	v.Suspension = 0
	if id, ok := m.reg.SuspensionID(spec.Suspension); ok {
		v.Suspension = id
	} else if spec.Suspension != "" {
		m.logger.Warn("Car suspension not found, using 0", "car", spec.Name, "suspension", spec.Suspension)
	}

	v.Asphalt = surf == nil || !surf.Type.Loose()
	v.Dyn.Attach(surf, m.reg.Tire(v.Tire), m.reg.Suspension(v.Suspension))
}

// Rebind re-resolves every vehicle after the registry tables were reloaded.
func (m *Manager) Rebind() {
	for _, v := range m.cars {
		m.bind(v)
	}
}

// LeaveGame drops every vehicle and clears the pause flag.
func (m *Manager) LeaveGame() {
	m.local = NoHandle
	m.cars = nil
	m.paused = false
}

// Get returns the vehicle for h.
func (m *Manager) Get(h Handle) (*Vehicle, bool) {
	if h < 0 || int(h) >= len(m.cars) {
		return nil, false
	}
	return m.cars[h], true
}

// Local returns the locally controlled vehicle.
func (m *Manager) Local() (*Vehicle, bool) {
	return m.Get(m.local)
}

// First returns the first vehicle in load order.
func (m *Manager) First() (*Vehicle, bool) {
	return m.Get(0)
}

// Each calls fn for every vehicle in load order.
func (m *Manager) Each(fn func(*Vehicle)) {
	for _, v := range m.cars {
		fn(v)
	}
}

// Len returns the number of vehicles.
func (m *Manager) Len() int { return len(m.cars) }

// Paused reports whether the session is paused.
func (m *Manager) Paused() bool { return m.paused }

// SetPaused pauses or resumes the session.
func (m *Manager) SetPaused(p bool) { m.paused = p }
