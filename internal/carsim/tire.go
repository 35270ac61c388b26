package carsim

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

const (
	tireExt = ".tire"

	// Calibration scans run at this normal load, in kN.
	refLoadKN = 4.0

	hatIterations = 2000
	maxSlipRatio  = 1.0
	maxSlipAngle  = 40.0 // degrees
)

// TireModel is one Pacejka '96 coefficient set. It is immutable once loaded.
type TireModel struct {
	Name   string
	Origin Origin

	Lateral      [15]float64
	Longitudinal [11]float64
	Aligning     [18]float64

	// SigmaHat is the slip ratio of peak longitudinal force at the
	// reference load; AlphaHat is the slip angle, in degrees, of peak
	// lateral force.
	SigmaHat float64
	AlphaHat float64
}

// lateralKey maps lateral index i to its key in the file. Indices 11 and
// 12 are stored as a111 and a112, so later ones shift down by one.
func lateralKey(i int) string {
	switch {
	case i == 11:
		return "a111"
	case i == 12:
		return "a112"
	case i > 12:
		return fmt.Sprintf("a%d", i-1)
	default:
		return fmt.Sprintf("a%d", i)
	}
}

// LoadTireModel reads dir/filename. Every coefficient is required.
func LoadTireModel(dir, filename string) (TireModel, error) {
	var tm TireModel

	path := filepath.Join(dir, filename)
	cfg, err := ini.Load(path)
	if err != nil {
		return tm, fmt.Errorf("%w: %s: %v", ErrNoConfig, path, err)
	}
	params := cfg.Section("params")

	read := func(key string) (float64, error) {
		if !params.HasKey(key) {
			return 0, fmt.Errorf("%w: %s: params.%s", ErrMissingKey, filename, key)
		}
		v, err := params.Key(key).Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: params.%s: %v", ErrMissingKey, filename, key, err)
		}
		return v, nil
	}

	for i := range tm.Lateral {
		if tm.Lateral[i], err = read(lateralKey(i)); err != nil {
			return TireModel{}, err
		}
	}
	for i := range tm.Longitudinal {
		if tm.Longitudinal[i], err = read(fmt.Sprintf("b%d", i)); err != nil {
			return TireModel{}, err
		}
	}
	for i := range tm.Aligning {
		if tm.Aligning[i], err = read(fmt.Sprintf("c%d", i)); err != nil {
			return TireModel{}, err
		}
	}

	tm.Name = strings.TrimSuffix(filename, tireExt)
	tm.calibrate()
	return tm, nil
}

// Fx returns longitudinal force in N for slip ratio sigma at load fz (kN).
func (t *TireModel) Fx(sigma, fz float64) float64 {
	b := &t.Longitudinal
	c := b[0]
	d := (b[1]*fz + b[2]) * fz
	if c*d == 0 {
		return 0
	}
	bcd := (b[3]*fz + b[4]) * math.Exp(-b[5]*fz)
	bb := bcd / (c * d)
	e := b[6]*fz*fz + b[7]*fz + b[8]
	sh := b[9]*fz + b[10]
	s := 100*sigma + sh

	bs := bb * s
	return d * math.Sin(c*math.Atan(bs-e*(bs-math.Atan(bs))))
}

// Fy returns lateral force in N for slip angle alpha (degrees) at load fz
// (kN) and camber gamma (degrees).
func (t *TireModel) Fy(alpha, fz, gamma float64) float64 {
	a := &t.Lateral
	c := a[0]
	d := (a[1]*fz + a[2]) * fz
	if c*d == 0 || a[4] == 0 {
		return 0
	}
	bcd := a[3] * math.Sin(2*math.Atan(fz/a[4])) * (1 - a[5]*math.Abs(gamma))
	bb := bcd / (c * d)
	e := a[6]*fz + a[7]
	sh := a[8]*gamma + a[9]*fz + a[10]
	sv := ((a[11]*fz+a[12])*gamma + a[13]) * fz
	s := alpha + sh

	bs := bb * s
	return d*math.Sin(c*math.Atan(bs-e*(bs-math.Atan(bs)))) + sv
}

// calibrate scans the force curves at the reference load for their peaks.
func (t *TireModel) calibrate() {
	t.SigmaHat = argmax(maxSlipRatio, func(x float64) float64 { return t.Fx(x, refLoadKN) })
	t.AlphaHat = argmax(maxSlipAngle, func(x float64) float64 { return t.Fy(x, refLoadKN, 0) })
}

// argmax samples f on (0, limit] and returns the x of the largest value.
func argmax(limit float64, f func(float64) float64) float64 {
	best, bestX := math.Inf(-1), limit
	for i := 1; i <= hatIterations; i++ {
		x := limit * float64(i) / hatIterations
		if v := f(x); v > best {
			best, bestX = v, x
		}
	}
	return bestX
}

// LoadAllTireModels clears the tire table and loads every *.tire file from
// the builtin directory and then the user directory, so a user tire with
// the same name shadows the builtin one. The last tire loaded becomes the
// default tire. A file that fails to load is logged and skipped.
func (r *Registry) LoadAllTireModels() {
	r.tires = r.tires[:0]
	r.tireIndex = map[string]TireID{}
	r.defaultTire, r.hasDefault = 0, false

	for _, src := range []struct {
		dir    string
		origin Origin
	}{
		{r.paths.builtin("tires"), OriginBuiltin},
		{r.paths.user("tires"), OriginUser},
	} {
		files, err := listFiles(src.dir, tireExt)
		if err != nil {
			r.logger.Debug("Tire directory not readable", "dir", src.dir, "error", err)
			continue
		}
		for _, file := range files {
			tm, err := LoadTireModel(src.dir, file)
			if err != nil {
				r.logger.Error("Error loading tire", "file", file, "origin", src.origin.String(), "error", err)
				continue
			}
			tm.Origin = src.origin
			r.tires = append(r.tires, tm)
			id := TireID(len(r.tires) - 1)
			r.tireIndex[tm.Name] = id
			r.defaultTire, r.hasDefault = id, true
		}
	}
}
