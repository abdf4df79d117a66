package daemon_test

import (
	"context"
	"testing"

	"mimic/internal/daemon"
	"mimic/internal/logging"
	"mimic/internal/orchestrator"
	"mimic/internal/synthesis"
	"mimic/internal/testsupport"
)

type idleSynth struct{}

func (idleSynth) Submit(context.Context, synthesis.SubmitRequest) (synthesis.Job, error) {
	return synthesis.Job{ID: "job-1", Status: synthesis.JobCreated}, nil
}

func (idleSynth) Status(context.Context, string) (synthesis.Job, error) {
	return synthesis.Job{ID: "job-1", Status: synthesis.JobStarted}, nil
}

func (idleSynth) Delete(context.Context, string) error { return nil }

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	orch := orchestrator.New(store, idleSynth{}, logger)
	manager := orchestrator.NewManager(cfg, store, orch, logger)

	d, err := daemon.New(cfg, store, logger, orch, manager, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if d.APIAddr() == "" {
		t.Fatal("expected api server to be listening")
	}

	// Second start should fail while running.
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonStatusReportsPaths(t *testing.T) {
	d := newDaemon(t)

	status := d.Status(context.Background())
	if status.RegistryDBPath == "" {
		t.Fatal("expected registry db path")
	}
	if status.LockFilePath == "" {
		t.Fatal("expected lock file path")
	}
	if status.SynthesisReady {
		t.Fatal("expected synthesis to be unconfigured")
	}
}
