// Command mimicd runs the mimic daemon: the ingestion API, the clone
// registry, and the synthesis job orchestrator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mimic/internal/config"
	"mimic/internal/daemon"
	"mimic/internal/ingest"
	"mimic/internal/logging"
	"mimic/internal/orchestrator"
	"mimic/internal/registry"
	"mimic/internal/storage"
	"mimic/internal/synthesis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, path, exists, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !exists {
		fmt.Fprintf(os.Stderr, "warn: no config file at %s, using defaults\n", path)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := registry.Open(cfg)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer store.Close()

	objects, err := storage.NewMinioStore(cfg)
	if err != nil {
		return fmt.Errorf("connect object store: %w", err)
	}
	transport := storage.NewTransport(objects, cfg, logger)
	maxBytes := int64(cfg.Ingest.MaxUploadMiB) << 20
	ingestSvc := ingest.NewService(store, transport, objects, maxBytes, logger)

	synth := synthesis.NewClient(cfg)
	if !synth.Configured() {
		logger.Warn("synthesis api key not configured, clone jobs will fail until it is set")
	}

	orch := orchestrator.New(store, synth, logger)
	manager := orchestrator.NewManager(cfg, store, orch, logger)

	d, err := daemon.New(cfg, store, logger, orch, manager, ingestSvc, synth)
	if err != nil {
		return fmt.Errorf("init daemon: %w", err)
	}

	if err := d.Start(ctx); err != nil {
		return err
	}
	logger.Info("mimicd running",
		logging.String("config", path),
		logging.String("api", d.APIAddr()))

	<-ctx.Done()
	d.Stop()
	return nil
}
