package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mimic/internal/config"
	"mimic/internal/logging"
	"mimic/internal/registry"
)

// activeStatuses are the states the background loop drives forward.
var activeStatuses = []registry.Status{
	registry.StatusDraft,
	registry.StatusUploading,
	registry.StatusSubmitted,
	registry.StatusPolling,
}

// Manager runs the orchestrator as a background loop over the registry.
type Manager struct {
	orch            *Orchestrator
	store           *registry.Store
	logger          *slog.Logger
	pollInterval    time.Duration
	jobPollInterval time.Duration
	retryInterval   time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a background manager from configuration.
func NewManager(cfg *config.Config, store *registry.Store, orch *Orchestrator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	poll := time.Duration(cfg.Workflow.RegistryPollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	jobPoll := time.Duration(cfg.Synthesis.PollIntervalSeconds) * time.Second
	if jobPoll <= 0 {
		jobPoll = poll
	}
	retry := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
	if retry <= 0 {
		retry = 10 * time.Second
	}
	return &Manager{
		orch:            orch,
		store:           store,
		logger:          logger.With(logging.String(logging.FieldComponent, "orchestrator.manager")),
		pollInterval:    poll,
		jobPollInterval: jobPoll,
		retryInterval:   retry,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("orchestrator already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for the loop to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the background loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		record, err := m.store.NextForStatuses(ctx, activeStatuses...)
		if err != nil {
			m.logger.Error("failed to fetch next clone", logging.Error(err))
			if !m.wait(ctx, m.retryInterval) {
				return
			}
			continue
		}
		if record == nil {
			if !m.wait(ctx, m.pollInterval) {
				return
			}
			continue
		}

		before := record.Status
		after, err := m.orch.Step(ctx, record)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.logger.Error("clone step failed",
				logging.String(logging.FieldCloneID, record.ID),
				logging.Error(err))
			if !m.wait(ctx, m.retryInterval) {
				return
			}
			continue
		}

		// A record that did not advance is waiting on the provider; pace the
		// loop instead of hammering the same clone. In-flight jobs wait the
		// provider's poll cadence rather than the registry scan cadence.
		if after == nil || after.Status == before {
			interval := m.pollInterval
			if after != nil && after.Status == registry.StatusPolling {
				interval = m.jobPollInterval
			}
			if !m.wait(ctx, interval) {
				return
			}
		}
	}
}

func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
