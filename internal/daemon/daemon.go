package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"mimic/internal/config"
	"mimic/internal/ingest"
	"mimic/internal/logging"
	"mimic/internal/orchestrator"
	"mimic/internal/registry"
	"mimic/internal/synthesis"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a filesystem lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *registry.Store
	orch    *orchestrator.Orchestrator
	manager *orchestrator.Manager
	ingest  *ingest.Service
	synth   *synthesis.Client

	lockPath string
	lock     *flock.Flock

	apiSrv *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	RegistryDBPath string
	LockFilePath   string
	SynthesisReady bool
	ManagerRunning bool
	CloneStats     map[registry.Status]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *registry.Store, logger *slog.Logger, orch *orchestrator.Orchestrator, manager *orchestrator.Manager, ingestSvc *ingest.Service, synth *synthesis.Client) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || orch == nil || manager == nil {
		return nil, errors.New("daemon requires config, store, logger, and orchestrator")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "mimicd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		orch:     orch,
		manager:  manager,
		ingest:   ingestSvc,
		synth:    synth,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiSrv = srv
	return d, nil
}

// Start acquires the daemon lock and launches the orchestrator and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mimic daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.manager.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if d.apiSrv != nil {
		if err := d.apiSrv.start(runCtx); err != nil {
			d.manager.Stop()
			_ = d.lock.Unlock()
			cancel()
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("mimic daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.apiSrv != nil {
		d.apiSrv.stop()
	}
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mimic daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr reports the bound address of the API server, or "" when disabled.
func (d *Daemon) APIAddr() string {
	if d.apiSrv == nil {
		return ""
	}
	return d.apiSrv.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to read clone stats", logging.Error(err))
		stats = nil
	}
	return Status{
		Running:        d.running.Load(),
		RegistryDBPath: d.store.Path(),
		LockFilePath:   d.lockPath,
		SynthesisReady: d.synth != nil && d.synth.Configured(),
		ManagerRunning: d.manager.Running(),
		CloneStats:     stats,
	}
}
