// Package records persists finished sessions through gorm.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/stuntsim/simcore/internal/model"
	"github.com/stuntsim/simcore/internal/sim"
)

// Store writes session results. It implements sim.SessionRecorder.
type Store struct {
	db       *gorm.DB
	logger   *slog.Logger
	settings datatypes.JSON
	lastID   uuid.UUID
}

// New returns a store writing to db, which must already be migrated.
func New(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, settings: datatypes.JSON("{}")}
}

// SetSettings records v as JSON with every following session.
func (s *Store) SetSettings(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding session settings: %w", err)
	}
	s.settings = datatypes.JSON(data)
	return nil
}

// LastID returns the id of the most recently saved session.
func (s *Store) LastID() uuid.UUID { return s.lastID }

// SaveSession stores res and its cars in one transaction.
func (s *Store) SaveSession(ctx context.Context, res sim.SessionResult) error {
	if s.db == nil {
		return errors.New("records database not available")
	}

	sess := model.Session{
		ID:             uuid.New(),
		Track:          res.Track,
		SimMode:        res.SimMode,
		StartedAt:      res.Started,
		EndedAt:        res.Ended,
		Ticks:          res.Ticks,
		ElapsedSeconds: res.Elapsed,
		Settings:       s.settings,
	}
	for _, c := range res.Cars {
		pos, err := PositionPoint(c.FinalPosition)
		if err != nil {
			return fmt.Errorf("final position of %q: %w", c.Name, err)
		}
		path, err := PathLineString(c.DriftPath)
		if err != nil {
			return fmt.Errorf("drift path of %q: %w", c.Name, err)
		}
		sess.Cars = append(sess.Cars, model.CarResult{
			Name:          c.Name,
			Local:         c.Local,
			Laps:          c.Laps,
			BestLap:       c.BestLap,
			DriftScore:    c.DriftScore,
			DriftCount:    c.DriftCount,
			MaxDriftAngle: c.MaxAngle,
			MaxDriftSpeed: c.MaxSpeed,
			FinalPosition: pos,
			DriftPath:     path,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&sess).Error
	})
	if err != nil {
		return fmt.Errorf("saving session on %q: %w", res.Track, err)
	}

	s.lastID = sess.ID
	s.logger.Info("Session saved", "session", sess.ID.String(), "track", sess.Track, "cars", len(sess.Cars))
	return nil
}

// Session loads one session with its cars.
func (s *Store) Session(ctx context.Context, id uuid.UUID) (model.Session, error) {
	var sess model.Session
	err := s.db.WithContext(ctx).Preload("Cars").First(&sess, "id = ?", id).Error
	return sess, err
}

// Sessions lists the most recent sessions on track, newest first. An
// empty track lists every track.
func (s *Store) Sessions(ctx context.Context, track string, limit int) ([]model.Session, error) {
	q := s.db.WithContext(ctx).Preload("Cars").Order("started_at DESC")
	if track != "" {
		q = q.Where("track = ?", track)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []model.Session
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// BestDrift returns the highest drift score recorded on track.
func (s *Store) BestDrift(ctx context.Context, track string) (model.CarResult, error) {
	var best model.CarResult
	err := s.db.WithContext(ctx).
		Joins("JOIN sessions ON sessions.id = car_results.session_id").
		Where("sessions.track = ?", track).
		Order("car_results.drift_score DESC").
		First(&best).Error
	return best, err
}

// PositionPoint converts a track position to a 3D point.
func PositionPoint(p mgl64.Vec3) (geom.Point, error) {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X(), Y: p.Y()},
		Z:    p.Z(),
		Type: geom.DimXYZ,
	})
}

// PointPosition converts a point back to a track position. An empty point
// is the origin.
func PointPosition(p geom.Point) mgl64.Vec3 {
	c, ok := p.Coordinates()
	if !ok {
		return mgl64.Vec3{}
	}
	return mgl64.Vec3{c.XY.X, c.XY.Y, c.Z}
}

// PathLineString converts a drift path. Paths with fewer than two distinct
// points are stored as an empty line.
func PathLineString(path []mgl64.Vec2) (geom.LineString, error) {
	if !hasDistinctPoints(path) {
		return geom.LineString{}, nil
	}
	coords := make([]float64, 0, len(path)*2)
	for _, p := range path {
		coords = append(coords, p.X(), p.Y())
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
}

func hasDistinctPoints(path []mgl64.Vec2) bool {
	for i := 1; i < len(path); i++ {
		if path[i] != path[0] {
			return true
		}
	}
	return false
}

// LineStringPath converts a stored line back to a drift path.
func LineStringPath(ls geom.LineString) []mgl64.Vec2 {
	seq := ls.Coordinates()
	if seq.Length() == 0 {
		return nil
	}
	out := make([]mgl64.Vec2, seq.Length())
	for i := range out {
		xy := seq.GetXY(i)
		out[i] = mgl64.Vec2{xy.X, xy.Y}
	}
	return out
}
