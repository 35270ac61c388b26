package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/stuntsim/simcore/internal/config"
	"github.com/stuntsim/simcore/internal/database"
	"github.com/stuntsim/simcore/internal/dispatcher"
	"github.com/stuntsim/simcore/internal/influx"
	"github.com/stuntsim/simcore/internal/logging"
	"github.com/stuntsim/simcore/internal/queue"
	"github.com/stuntsim/simcore/internal/records"
	"github.com/stuntsim/simcore/internal/remote"
)

// services are the collaborators around the game. Everything but the
// command queue is nil when the matching feature is off or failed to start.
type services struct {
	commands *queue.Queue[remote.Command]
	disp     *dispatcher.Dispatcher
	remote   *remote.Server
	db       *database.Manager
	records  *records.Store
	influx   *influx.Manager
}

// startServices brings up storage, telemetry and the command service.
// Failures of optional services are logged and the service left off.
func startServices(ctx context.Context, level string) (*services, error) {
	rc := config.GetRemoteConfig()
	s := &services{commands: queue.New[remote.Command](rc.Queue)}

	if err := s.openRecords(level); err != nil {
		Logger.Error("Session records disabled", "error", err)
	}
	if err := s.openTelemetry(ctx, level); err != nil {
		Logger.Warn("Telemetry disabled", "error", err)
	}

	if rc.Enabled {
		if err := s.startRemote(rc); err != nil {
			s.close(ctx)
			return nil, err
		}
	}
	return s, nil
}

func (s *services) openRecords(level string) error {
	sc := config.GetStorageConfig()
	dbc := config.GetDBConfig()

	s.db = database.NewManager(logging.NewZerolog(logWriter(), level, "database"), database.Config{
		Type:       sc.Type,
		SQLitePath: sc.SQLite.Path,
		Host:       dbc.Host,
		Port:       dbc.Port,
		Username:   dbc.Username,
		Password:   dbc.Password,
		Database:   dbc.Database,
	})
	if err := s.db.Connect(); err != nil {
		s.db = nil
		return fmt.Errorf("connecting to database: %w", err)
	}
	if err := s.db.Setup(AppName, CurrentVersion); err != nil {
		s.db.Close()
		s.db = nil
		return fmt.Errorf("setting up database: %w", err)
	}

	s.records = records.New(s.db.DB, Logger)
	if err := s.records.SetSettings(config.GetSimConfig()); err != nil {
		Logger.Warn("Failed to encode sim settings", "error", err)
	}
	Logger.Info("Session records ready", "dialect", s.db.DB.Dialector.Name())
	return nil
}

func (s *services) openTelemetry(ctx context.Context, level string) error {
	tc := config.GetTelemetryConfig()
	if !tc.Enabled {
		return nil
	}
	ic := config.GetInfluxConfig()

	m := influx.NewManager(logging.NewZerolog(logWriter(), level, "influx"), influx.Config{
		Enabled: ic.Enabled,
		URL:     fmt.Sprintf("%s://%s:%s", ic.Protocol, ic.Host, ic.Port),
		Token:   ic.Token,
		Org:     ic.Org,
		Bucket:  tc.Bucket,
	}, tc.BackupPath)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.Connect(connectCtx); err != nil {
		return err
	}
	s.influx = m
	return nil
}

func (s *services) startRemote(rc config.RemoteConfig) error {
	d, err := dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	s.disp = d

	srv := remote.NewServer(remote.Config{Address: rc.Address, Path: rc.Path, Buffer: rc.Queue}, d, s.commands, Logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting remote command service: %w", err)
	}
	s.remote = srv
	return nil
}

func (s *services) close(ctx context.Context) {
	if s.remote != nil {
		if err := s.remote.Close(ctx); err != nil {
			Logger.Error("Failed to close remote command service", "error", err)
		}
	}
	if s.disp != nil {
		s.disp.Close()
	}
	if s.influx != nil {
		if err := s.influx.Close(); err != nil {
			Logger.Error("Failed to close telemetry", "error", err)
		}
	}
	if s.db != nil {
		if config.GetStorageConfig().Type == database.TypeMemory {
			if err := s.db.DumpMemoryToDisk(s.db.SqliteFilePath); err != nil {
				Logger.Error("Failed to dump records to disk", "error", err)
			}
		}
		if err := s.db.Close(); err != nil {
			Logger.Error("Failed to close database", "error", err)
		}
	}
}

// logWriter is where the zerolog managers write: the session log file
// when one is open.
func logWriter() *os.File {
	if LogFile != nil {
		return LogFile
	}
	return os.Stdout
}
