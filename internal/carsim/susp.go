package carsim

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

const suspExt = ".susp"

// Point is one (position, factor) control point.
type Point struct {
	X, Y float64
}

// Curve is a control polyline sorted by X.
type Curve []Point

// At interpolates the curve linearly at x, holding the end values outside
// its range. An empty curve yields 1.
func (c Curve) At(x float64) float64 {
	switch {
	case len(c) == 0:
		return 1
	case x <= c[0].X:
		return c[0].Y
	case x >= c[len(c)-1].X:
		return c[len(c)-1].Y
	}
	i := sort.Search(len(c), func(i int) bool { return c[i].X >= x })
	a, b := c[i-1], c[i]
	if b.X == a.X {
		return b.Y
	}
	return a.Y + (b.Y-a.Y)*(x-a.X)/(b.X-a.X)
}

// SuspensionProfile pairs the damper and spring factor curves of one file.
type SuspensionProfile struct {
	Name   string
	Damper Curve
	Spring Curve
}

// LoadAllSuspensionCurves clears the suspension table and loads every *.susp
// file from the builtin directory. A file that cannot be read is logged and
// skipped.
func (r *Registry) LoadAllSuspensionCurves() {
	r.suspensions = r.suspensions[:0]
	r.suspensionIndex = map[string]SuspensionID{}

	dir := r.paths.builtin("susp")
	files, err := listFiles(dir, suspExt)
	if err != nil {
		r.logger.Debug("Suspension directory not readable", "dir", dir, "error", err)
		return
	}

	for _, file := range files {
		p, err := loadSuspension(dir, file)
		if err != nil {
			r.logger.Error("Error loading susp file", "file", file, "error", err)
			continue
		}
		r.suspensions = append(r.suspensions, p)
		r.suspensionIndex[p.Name] = SuspensionID(len(r.suspensions) - 1)
	}
}

func loadSuspension(dir, file string) (SuspensionProfile, error) {
	cfg, err := ini.Load(filepath.Join(dir, file))
	if err != nil {
		return SuspensionProfile{}, fmt.Errorf("%w: %s: %v", ErrNoConfig, file, err)
	}
	sec := cfg.Section("suspension")

	damper, err := readPoints(sec, "damper-factor")
	if err != nil {
		return SuspensionProfile{}, err
	}
	spring, err := readPoints(sec, "spring-factor")
	if err != nil {
		return SuspensionProfile{}, err
	}

	return SuspensionProfile{
		Name:   strings.TrimSuffix(file, suspExt),
		Damper: damper,
		Spring: spring,
	}, nil
}

// readPoints collects every key in sec starting with prefix. Each value is
// "x, y".
func readPoints(sec *ini.Section, prefix string) (Curve, error) {
	var c Curve
	for _, key := range sec.Keys() {
		if !strings.HasPrefix(key.Name(), prefix) {
			continue
		}
		p, err := parsePoint(key.String())
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", sec.Name(), key.Name(), err)
		}
		c = append(c, p)
	}
	sort.SliceStable(c, func(i, j int) bool { return c[i].X < c[j].X })
	return c, nil
}

func parsePoint(s string) (Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("want \"x, y\", got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, err
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}
