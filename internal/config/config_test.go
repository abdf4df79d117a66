package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mimic/internal/config"
)

func TestLoadDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "mimic", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7319" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Storage.UploadAttempts != 3 {
		t.Fatalf("unexpected upload attempts: %d", cfg.Storage.UploadAttempts)
	}
	if cfg.Synthesis.BaseURL != "https://api.d-id.com" {
		t.Fatalf("unexpected synthesis base url: %q", cfg.Synthesis.BaseURL)
	}
	if cfg.Synthesis.TimeoutSeconds != 30 {
		t.Fatalf("unexpected synthesis timeout: %d", cfg.Synthesis.TimeoutSeconds)
	}
	if cfg.Ingest.MaxUploadMiB != 100 {
		t.Fatalf("unexpected upload cap: %d", cfg.Ingest.MaxUploadMiB)
	}
	if cfg.SynthesisConfigured() {
		t.Fatal("expected synthesis unconfigured by default")
	}
}

func TestLoadParsesFileAndTrimsValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		`[paths]`,
		`data_dir = "` + filepath.Join(dir, "data") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		`[synthesis]`,
		`api_key = "  basic-credential  "`,
		`base_url = "https://synth.example.com/"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q to be used, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Synthesis.APIKey != "basic-credential" {
		t.Fatalf("expected trimmed api key, got %q", cfg.Synthesis.APIKey)
	}
	if cfg.Synthesis.BaseURL != "https://synth.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Synthesis.BaseURL)
	}
	if !cfg.SynthesisConfigured() {
		t.Fatal("expected synthesis configured")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero upload attempts", func(c *config.Config) { c.Storage.UploadAttempts = 0 }},
		{"zero backoff", func(c *config.Config) { c.Storage.UploadBackoffSeconds = 0 }},
		{"missing synthesis url", func(c *config.Config) { c.Synthesis.BaseURL = "" }},
		{"zero poll interval", func(c *config.Config) { c.Synthesis.PollIntervalSeconds = 0 }},
		{"zero upload cap", func(c *config.Config) { c.Ingest.MaxUploadMiB = 0 }},
		{"empty data dir", func(c *config.Config) { c.Paths.DataDir = "" }},
	}
	for _, tc := range cases {
		cfg := config.Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[synthesis]") {
		t.Fatal("expected sample to include synthesis section")
	}
}
