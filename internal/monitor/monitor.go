package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Status is a point-in-time view of the running simulation.
type Status struct {
	Time            time.Time `json:"time"`
	Track           string    `json:"track"`
	SimMode         string    `json:"simMode"`
	Frame           uint64    `json:"frame"`
	DisplayFrame    uint64    `json:"displayFrame"`
	Ticks           uint64    `json:"ticks"`
	LeftoverMs      float64   `json:"leftoverMs"`
	Cars            int       `json:"cars"`
	Countdown       float64   `json:"countdown"`
	PendingCommands int       `json:"pendingCommands"`
	FFSamples       uint64    `json:"ffSamples"`
	MeanFPS         float64   `json:"meanFps"`
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger     *slog.Logger
	StatusPath string
	Interval   time.Duration
}

// Service publishes the latest status to a file. The simulation goroutine
// calls Publish; a background goroutine writes at most once per interval.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	doneChan  chan struct{}

	latest  Status
	dirty   bool
	written uint64
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Publish replaces the pending status.
func (s *Service) Publish(st Status) {
	s.mu.Lock()
	s.latest = st
	s.dirty = true
	s.mu.Unlock()
}

// Latest returns the last published status.
func (s *Service) Latest() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Written returns how many snapshots reached the status file.
func (s *Service) Written() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.written
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	statusFile, err := os.Create(s.deps.StatusPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("creating status file: %w", err)
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer statusFile.Close()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "path", s.deps.StatusPath)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				s.flush(statusFile)
				return
			case <-ticker.C:
				s.flush(statusFile)
			}
		}
	}()

	return nil
}

func (s *Service) flush(f *os.File) {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	st := s.latest
	s.dirty = false
	s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		s.deps.Logger.Error("Error encoding status", "error", err)
		return
	}
	if err := f.Truncate(0); err != nil {
		s.deps.Logger.Error("Error writing status file", "error", err)
		return
	}
	if _, err := f.WriteAt(append(data, '\n'), 0); err != nil {
		s.deps.Logger.Error("Error writing status file", "error", err)
		return
	}

	s.mu.Lock()
	s.written++
	s.mu.Unlock()
}

// Stop stops the status monitor and waits for the final write.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.doneChan
	s.mu.Unlock()
	<-done
}
