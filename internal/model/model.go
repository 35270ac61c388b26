package model

import (
	"time"

	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&SimInfo{},
	&Session{},
	&CarResult{},
}

// SimInfo identifies the installation that wrote the records
type SimInfo struct {
	gorm.Model
	Name    string `json:"name" gorm:"size:127"`
	Version string `json:"version" gorm:"size:64"`
}

func (*SimInfo) TableName() string {
	return "sim_infos"
}

// Session is one track session, from LoadTrack to LeaveGame
type Session struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt      time.Time      `json:"createdAt"`
	Track          string         `json:"track" gorm:"size:128;index:idx_session_track"`
	SimMode        string         `json:"simMode" gorm:"size:32"`
	StartedAt      time.Time      `json:"startedAt" gorm:"type:timestamptz;index:idx_session_started_at"`
	EndedAt        time.Time      `json:"endedAt" gorm:"type:timestamptz"`
	Ticks          uint64         `json:"ticks"`
	ElapsedSeconds float64        `json:"elapsedSeconds"`
	Settings       datatypes.JSON `json:"settings"` // scheduler and input settings in effect
	Cars           []CarResult    `json:"cars" gorm:"foreignKey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Session) TableName() string {
	return "sessions"
}

// CarResult is one car's outcome in a session
type CarResult struct {
	ID            uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     uuid.UUID       `json:"sessionId" gorm:"type:uuid;index:idx_carresult_session_id"`
	Name          string          `json:"name" gorm:"size:128"`
	Local         bool            `json:"local"`
	Laps          int             `json:"laps"`
	BestLap       float64         `json:"bestLap"`    // seconds, 0 when no lap was closed
	DriftScore    float64         `json:"driftScore"` // committed total
	DriftCount    int             `json:"driftCount"`
	MaxDriftAngle float64         `json:"maxDriftAngle"` // radians
	MaxDriftSpeed float64         `json:"maxDriftSpeed"`
	FinalPosition geom.Point      `json:"finalPosition"` // XYZ in track metres
	DriftPath     geom.LineString `json:"driftPath"`     // XY points sampled while drifting
}

func (*CarResult) TableName() string {
	return "car_results"
}
