package carsim

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

const surfacesFile = "surfaces.cfg"

// SurfaceType classifies a surface for audio and handling.
type SurfaceType int

const (
	SurfaceNone SurfaceType = iota
	SurfaceAsphalt
	SurfaceGrass
	SurfaceGravel
	SurfaceConcrete
	SurfaceSand
	SurfaceCobbles
)

// surfaceType maps the numeric ID from surfaces.cfg onto a SurfaceType.
func surfaceType(id int) SurfaceType {
	if id < int(SurfaceNone) || id > int(SurfaceCobbles) {
		return SurfaceNone
	}
	return SurfaceType(id)
}

// Loose reports whether the surface handles like gravel for steering.
func (t SurfaceType) Loose() bool {
	return t == SurfaceGrass || t == SurfaceGravel || t == SurfaceSand
}

// SurfaceModel is one section of surfaces.cfg. Optional values are zero
// when the file leaves them out.
type SurfaceModel struct {
	Name string
	ID   int
	Type SurfaceType

	BumpWaveLength  float64
	BumpAmplitude   float64
	BumpWaveLength2 float64
	BumpAmplitude2  float64

	FrictionTread float64
	FrictionX     float64
	FrictionY     float64

	RollResistance float64
	RollingDrag    float64

	TireName string
	Tire     TireID
}

// LoadAllSurfaces clears the surface table and loads surfaces.cfg from the
// user directory if it exists, else from the builtin directory. The two are
// never merged. A surface without a Tire key uses trackDefaultTire, or the
// registry default tire when that is empty. Tire names that do not resolve
// fall back to tire 0 with a warning. Any missing required key fails the
// whole load and leaves the table empty.
func (r *Registry) LoadAllSurfaces(trackDefaultTire string) error {
	r.surfaces = r.surfaces[:0]
	r.surfaceIndex = map[string]SurfaceID{}

	path := r.paths.user(surfacesFile)
	if _, err := os.Stat(path); err == nil {
		r.logger.Info("Using user surfaces", "path", path)
	} else {
		path = r.paths.builtin(surfacesFile)
	}

	cfg, err := ini.Load(path)
	if err != nil {
		r.logger.Error("Can't find surfaces config file", "path", path, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrNoConfig, path, err)
	}

	var loaded []SurfaceModel
	for _, sec := range cfg.Sections() {
		if sec.Name() == ini.DefaultSection {
			if len(sec.Keys()) > 0 {
				r.logger.Warn("Ignoring keys outside a surface section", "path", path, "keys", len(sec.Keys()))
			}
			continue
		}
		surf, err := r.parseSurface(sec, trackDefaultTire)
		if err != nil {
			r.logger.Error("Error loading surface", "surface", sec.Name(), "path", path, "error", err)
			return err
		}
		loaded = append(loaded, surf)
	}

	for _, surf := range loaded {
		r.surfaces = append(r.surfaces, surf)
		r.surfaceIndex[surf.Name] = SurfaceID(len(r.surfaces) - 1)
	}
	return nil
}

func (r *Registry) parseSurface(sec *ini.Section, trackDefaultTire string) (SurfaceModel, error) {
	s := SurfaceModel{Name: sec.Name()}

	required := func(key string) (float64, error) {
		if !sec.HasKey(key) {
			return 0, fmt.Errorf("%w: %s.%s", ErrMissingKey, sec.Name(), key)
		}
		v, err := sec.Key(key).Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s.%s: %v", ErrMissingKey, sec.Name(), key, err)
		}
		return v, nil
	}
	optional := func(key string) float64 {
		if !sec.HasKey(key) {
			return 0
		}
		v, err := sec.Key(key).Float64()
		if err != nil {
			r.logger.Warn("Ignoring bad surface value", "surface", sec.Name(), "key", key, "error", err)
			return 0
		}
		return v
	}

	if !sec.HasKey("ID") {
		return s, fmt.Errorf("%w: %s.ID", ErrMissingKey, sec.Name())
	}
	id, err := sec.Key("ID").Int()
	if err != nil {
		return s, fmt.Errorf("%w: %s.ID: %v", ErrMissingKey, sec.Name(), err)
	}
	s.ID = id
	s.Type = surfaceType(id)

	var errs []error
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"BumpWaveLength", &s.BumpWaveLength},
		{"BumpAmplitude", &s.BumpAmplitude},
		{"FrictionTread", &s.FrictionTread},
		{"RollingDrag", &s.RollingDrag},
	} {
		v, err := required(f.key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.dst = v
	}
	if len(errs) > 0 {
		return s, errors.Join(errs...)
	}

	s.BumpWaveLength2 = optional("BumpWaveLength2")
	s.BumpAmplitude2 = optional("BumpAmplitude2")
	s.FrictionX = optional("FrictionX")
	s.FrictionY = optional("FrictionY")
	s.RollResistance = optional("RollResistance")

	s.TireName, s.Tire = r.resolveSurfaceTire(sec, trackDefaultTire)
	return s, nil
}

func (r *Registry) resolveSurfaceTire(sec *ini.Section, trackDefaultTire string) (string, TireID) {
	name := ""
	if sec.HasKey("Tire") {
		name = sec.Key("Tire").String()
	} else {
		name = trackDefaultTire
		if name == "" {
			if id, ok := r.DefaultTire(); ok {
				name = r.tires[id].Name
			}
		}
		r.logger.Warn("Surface has no tire, using default", "surface", sec.Name(), "tire", name)
	}

	id, ok := r.tireIndex[name]
	if !ok {
		r.logger.Warn("Surface tire not found, using 0", "surface", sec.Name(), "tire", name)
		return name, 0
	}
	return name, id
}
