package myaudio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/retracehq/retrace/internal/logging"
	"github.com/retracehq/retrace/internal/observability"
	"github.com/retracehq/retrace/internal/transcribe"
)

const (
	supervisorPollInterval = 100 * time.Millisecond
	workerStopTimeout      = 5 * time.Second
	commandQueueSize       = 64
)

// RecordFunc records one chunk for a device; injected so the supervisor is
// testable without sound hardware.
type RecordFunc func(ctx context.Context, device AudioDevice, duration time.Duration, filePath string, out chan<- transcribe.Input) error

// SupervisorConfig holds the per-device worker settings.
type SupervisorConfig struct {
	OutputDir     string
	ChunkDuration time.Duration
}

// DeviceState is one row of the published device table.
type DeviceState struct {
	ID        string `json:"id"`
	IsRunning bool   `json:"is_running"`
}

// Supervisor owns the per-device capture workers. Commands arrive on a
// multi-producer queue; the worker table is confined to the Run goroutine.
// Workers that die on their own are reaped and not restarted until a new
// start command arrives.
type Supervisor struct {
	cfg     SupervisorConfig
	record  RecordFunc
	out     chan<- transcribe.Input
	metrics *observability.Metrics
	log     *slog.Logger

	commands chan Command

	// workers is touched only by the Run goroutine.
	workers map[string]*deviceWorker

	statusMu sync.RWMutex
	status   map[string]DeviceControl
}

type deviceWorker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor creates a supervisor. known seeds the published device
// table so status lookups work before any device was started.
func NewSupervisor(cfg SupervisorConfig, out chan<- transcribe.Input, record RecordFunc, known []AudioDevice, metrics *observability.Metrics) *Supervisor {
	log := logging.ForService("myaudio")
	if log == nil {
		log = slog.Default().With("service", "myaudio")
	}

	status := make(map[string]DeviceControl, len(known))
	for _, device := range known {
		status[device.String()] = DeviceControl{}
	}

	return &Supervisor{
		cfg:      cfg,
		record:   record,
		out:      out,
		metrics:  metrics,
		log:      log,
		commands: make(chan Command, commandQueueSize),
		workers:  make(map[string]*deviceWorker),
		status:   status,
	}
}

// Push enqueues a device control command. Safe for concurrent producers;
// ordering per producer is preserved.
func (s *Supervisor) Push(device AudioDevice, control DeviceControl) {
	s.commands <- Command{Device: device, Control: control}
}

// DeviceStatus returns the published control state for a device ID.
func (s *Supervisor) DeviceStatus(id string) (DeviceControl, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	control, ok := s.status[id]
	return control, ok
}

// Devices returns the published device table sorted by ID.
func (s *Supervisor) Devices() []DeviceState {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	states := make([]DeviceState, 0, len(s.status))
	for id, control := range s.status {
		states = append(states, DeviceState{ID: id, IsRunning: control.IsRunning})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

func (s *Supervisor) setStatus(id string, control DeviceControl) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status[id] = control
}

// Run processes commands and reaps dead workers until ctx ends, then stops
// every worker with a bounded wait.
func (s *Supervisor) Run(ctx context.Context) {
	s.log.Info("Audio supervisor started", "chunk_duration", s.cfg.ChunkDuration)

	ticker := time.NewTicker(supervisorPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case cmd := <-s.commands:
			s.apply(ctx, cmd)
		case <-ticker.C:
			s.reap()
		}
	}
}

func (s *Supervisor) apply(ctx context.Context, cmd Command) {
	id := cmd.Device.String()

	if !cmd.Control.IsRunning {
		worker, ok := s.workers[id]
		if !ok {
			// Stopping a device that is not running is a no-op.
			s.log.Debug("Stop for idle device ignored", "device", id)
			return
		}
		s.log.Info("Stopping capture worker", "device", id)
		s.stopWorker(id, worker)
		return
	}

	if _, ok := s.workers[id]; ok {
		// Duplicate start; exactly one worker per device.
		s.log.Debug("Start for running device coalesced", "device", id)
		return
	}

	s.log.Info("Starting capture worker", "device", id)
	workerCtx, cancel := context.WithCancel(ctx)
	worker := &deviceWorker{cancel: cancel, done: make(chan struct{})}
	s.workers[id] = worker
	s.setStatus(id, cmd.Control)
	if s.metrics != nil {
		s.metrics.ActiveAudioWorkers.Inc()
	}

	go s.runWorker(workerCtx, cmd.Device, worker.done)
}

// runWorker is the per-device chunk loop: record, hand off, repeat. Any
// recording error is fatal for the worker; only a new start command revives
// the device.
func (s *Supervisor) runWorker(ctx context.Context, device AudioDevice, done chan<- struct{}) {
	defer close(done)

	id := device.String()
	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			s.log.Info("Capture worker cancelled", "device", id)
			return
		}

		fileName := fmt.Sprintf("%s_%s.mp4", id, time.Now().UTC().Format("2006-01-02_15-04-05"))
		filePath := filepath.Join(s.cfg.OutputDir, fileName)

		s.log.Debug("Recording chunk",
			"device", id,
			"iteration", iteration,
			"file", fileName)

		if err := s.record(ctx, device, s.cfg.ChunkDuration, filePath, s.out); err != nil {
			if ctx.Err() != nil {
				s.log.Info("Capture worker cancelled mid-chunk, chunk discarded", "device", id)
				return
			}
			s.log.Error("Recording failed, stopping worker",
				"device", id,
				"iteration", iteration,
				"error", err)
			return
		}

		if s.metrics != nil {
			s.metrics.AudioChunksRecorded.WithLabelValues(id).Inc()
		}
	}
}

// stopWorker cancels a worker and waits for it up to workerStopTimeout.
func (s *Supervisor) stopWorker(id string, worker *deviceWorker) {
	worker.cancel()
	select {
	case <-worker.done:
	case <-time.After(workerStopTimeout):
		s.log.Warn("Capture worker did not stop in time", "device", id)
	}
	delete(s.workers, id)
	s.setStatus(id, DeviceControl{})
	if s.metrics != nil {
		s.metrics.ActiveAudioWorkers.Dec()
	}
}

// reap removes workers that terminated on their own.
func (s *Supervisor) reap() {
	for id, worker := range s.workers {
		select {
		case <-worker.done:
			s.log.Info("Capture worker terminated, removing", "device", id)
			delete(s.workers, id)
			s.setStatus(id, DeviceControl{})
			if s.metrics != nil {
				s.metrics.ActiveAudioWorkers.Dec()
			}
		default:
		}
	}
}

func (s *Supervisor) shutdown() {
	for id, worker := range s.workers {
		s.stopWorker(id, worker)
	}
	s.log.Info("Audio supervisor stopped")
}
