// Package carsim holds the physics data tables shared by every simulated
// vehicle: Pacejka tire models, road surfaces and suspension factor curves.
// Tables are loaded from INI files under <dir>/<simMode>/ and addressed by
// small integer ids so vehicles never hold pointers into them.
package carsim

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

var (
	// ErrMissingKey is returned when a required key is absent or unparseable.
	ErrMissingKey = errors.New("missing required key")
	// ErrNoConfig is returned when a required data file cannot be read.
	ErrNoConfig = errors.New("config file not found")
)

// TireID indexes Registry tires.
type TireID int

// SurfaceID indexes Registry surfaces.
type SurfaceID int

// SuspensionID indexes Registry suspension profiles.
type SuspensionID int

// Origin records which data directory an entry came from.
type Origin int

const (
	OriginBuiltin Origin = iota
	OriginUser
)

func (o Origin) String() string {
	if o == OriginUser {
		return "user"
	}
	return "builtin"
}

// Paths locates the data directories. Files are read from
// <BuiltinDir>/<SimMode>/ and <UserDir>/<SimMode>/.
type Paths struct {
	BuiltinDir string
	UserDir    string
	SimMode    string
}

func (p Paths) builtin(sub ...string) string {
	return filepath.Join(append([]string{p.BuiltinDir, p.SimMode}, sub...)...)
}

func (p Paths) user(sub ...string) string {
	return filepath.Join(append([]string{p.UserDir, p.SimMode}, sub...)...)
}

// Registry owns the tire, surface and suspension tables. It is not safe
// for concurrent use; reloads happen between ticks on the simulation
// goroutine.
type Registry struct {
	paths  Paths
	logger *slog.Logger

	tires       []TireModel
	tireIndex   map[string]TireID
	defaultTire TireID
	hasDefault  bool
	refTire     TireID

	surfaces     []SurfaceModel
	surfaceIndex map[string]SurfaceID

	suspensions     []SuspensionProfile
	suspensionIndex map[string]SuspensionID
}

// NewRegistry returns an empty registry reading from paths.
func NewRegistry(paths Paths, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		paths:           paths,
		logger:          logger,
		tireIndex:       map[string]TireID{},
		surfaceIndex:    map[string]SurfaceID{},
		suspensionIndex: map[string]SuspensionID{},
	}
}

// Paths returns the directories the registry reads from.
func (r *Registry) Paths() Paths { return r.paths }

// SetSimMode switches the data subdirectory used by the next load.
func (r *Registry) SetSimMode(mode string) { r.paths.SimMode = mode }

// ReloadSimData reloads every table. Surfaces that omit a tire use
// trackDefaultTire. The returned error is the surface load failure, if any;
// tire and suspension problems are logged per file and never fatal.
func (r *Registry) ReloadSimData(trackDefaultTire string) error {
	r.LoadAllTireModels()
	err := r.LoadAllSurfaces(trackDefaultTire)
	r.LoadAllSuspensionCurves()

	r.logger.Info("Carsim loaded",
		"simMode", r.paths.SimMode,
		"tires", len(r.tires),
		"surfaces", len(r.surfaces),
		"suspensions", len(r.suspensions),
	)
	return err
}

// TireCount returns the number of loaded tire models, shadowed ones included.
func (r *Registry) TireCount() int { return len(r.tires) }

// SurfaceCount returns the number of loaded surfaces.
func (r *Registry) SurfaceCount() int { return len(r.surfaces) }

// SuspensionCount returns the number of loaded suspension profiles.
func (r *Registry) SuspensionCount() int { return len(r.suspensions) }

// TireID resolves a tire name.
func (r *Registry) TireID(name string) (TireID, bool) {
	id, ok := r.tireIndex[name]
	return id, ok
}

// Tire returns the tire at id. Callers pass ids obtained from this registry.
func (r *Registry) Tire(id TireID) *TireModel {
	if int(id) < 0 || int(id) >= len(r.tires) {
		return nil
	}
	return &r.tires[id]
}

// DefaultTire returns the most recently loaded tire.
func (r *Registry) DefaultTire() (TireID, bool) {
	return r.defaultTire, r.hasDefault
}

// SurfaceID resolves a surface name.
func (r *Registry) SurfaceID(name string) (SurfaceID, bool) {
	id, ok := r.surfaceIndex[name]
	return id, ok
}

// Surface returns the surface at id, or nil if id is out of range.
func (r *Registry) Surface(id SurfaceID) *SurfaceModel {
	if int(id) < 0 || int(id) >= len(r.surfaces) {
		return nil
	}
	return &r.surfaces[id]
}

// SuspensionID resolves a suspension profile name.
func (r *Registry) SuspensionID(name string) (SuspensionID, bool) {
	id, ok := r.suspensionIndex[name]
	return id, ok
}

// Suspension returns the profile at id, or nil if id is out of range.
func (r *Registry) Suspension(id SuspensionID) *SuspensionProfile {
	if int(id) < 0 || int(id) >= len(r.suspensions) {
		return nil
	}
	return &r.suspensions[id]
}

// PickReferenceTire selects the tire graph consumers compare against.
// An unknown name selects id 0.
func (r *Registry) PickReferenceTire(name string) TireID {
	id, ok := r.tireIndex[name]
	if !ok {
		r.logger.Info("Reference tire not found", "tire", name)
		id = 0
	}
	r.refTire = id
	return id
}

// ReferenceTire returns the tire last chosen by PickReferenceTire.
func (r *Registry) ReferenceTire() TireID { return r.refTire }

// listFiles returns the names of regular files in dir with extension ext,
// sorted. A missing directory yields no files.
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
