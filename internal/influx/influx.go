// Package influx ships per-tick vehicle telemetry to InfluxDB, falling back
// to a gzipped line protocol file when the server cannot be reached.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/stuntsim/simcore/internal/vehicle"
)

// Measurement is the measurement name of vehicle samples.
const Measurement = "vehicle"

// Config locates the server and the bucket samples go to.
type Config struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
}

// Manager handles the InfluxDB connection and writes. It implements the
// simulation's telemetry sink.
type Manager struct {
	Client  influxdb2.Client
	Writer  influxdb2_api.WriteAPI
	IsValid bool
	Logger  zerolog.Logger

	cfg        Config
	backupPath string

	mu           sync.Mutex
	backupFile   *os.File
	backupWriter *gzip.Writer

	track string
	base  time.Time
}

// NewManager creates a manager that is not yet connected.
func NewManager(log zerolog.Logger, cfg Config, backupPath string) *Manager {
	return &Manager{
		Logger:     log,
		cfg:        cfg,
		backupPath: backupPath,
		base:       time.Now(),
	}
}

// Connect pings the server and prepares the org, bucket and writer. When
// the server does not answer, samples go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx is disabled")
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	m.IsValid = err == nil && running

	if !m.IsValid {
		m.Logger.Warn().Str("url", m.cfg.URL).Str("backupPath", m.backupPath).
			Msg("InfluxDB not reachable, writing telemetry to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(m.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.backupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")

	rule := domain.RetentionRuleTypeExpire
	_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: 60 * 60 * 24 * 30, // 30 days
	})
	if err != nil {
		m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
		return err
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)

	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
}

// StartSession tags following samples with track and times them from
// start.
func (m *Manager) StartSession(track string, start time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track = track
	m.base = start
}

// WriteSamples implements the simulation telemetry sink. Errors are logged;
// the simulation never waits on telemetry.
func (m *Manager) WriteSamples(tick uint64, simTime time.Duration, samples []vehicle.Sample) {
	m.mu.Lock()
	track, at := m.track, m.base.Add(simTime)
	m.mu.Unlock()

	for _, s := range samples {
		if err := m.WritePoint(SamplePoint(track, tick, at, s)); err != nil {
			m.Logger.Debug().Err(err).Str("car", s.Car).Msg("Dropping telemetry sample")
			return
		}
	}
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := m.backupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupWriter == nil {
		return nil
	}
	err := errors.Join(m.backupWriter.Close(), m.backupFile.Close())
	m.backupWriter, m.backupFile = nil, nil
	return err
}

// SamplePoint converts one vehicle sample to a point.
func SamplePoint(track string, tick uint64, at time.Time, s vehicle.Sample) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(Measurement).
		AddTag("car", s.Car).
		AddTag("id", strconv.Itoa(s.ID)).
		AddField("tick", int64(tick)).
		AddField("x", s.Position.X()).
		AddField("y", s.Position.Y()).
		AddField("z", s.Position.Z()).
		AddField("speed", s.Speed).
		AddField("gear", s.Gear).
		AddField("boost", s.Boost).
		AddField("throttle", s.Controls.Throttle).
		AddField("brake", s.Controls.Brake).
		AddField("steer", s.Controls.Steer).
		AddField("inFluid", s.InFluid).
		AddField("drifting", s.Drifting).
		AddField("driftScore", s.DriftScore).
		SetTime(at)
	if track != "" {
		p.AddTag("track", track)
	}
	return p
}
