package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PRICEWATCH_WORKER_PATH", "PRICEWATCH_WORKER_SCRIPT", "PRICEWATCH_WORKER_CONFIG",
		"PYTHON_ENV_PATH", "SCRAPER_PATH", "SCRAPER_CONFIG_PATH",
		"PRICEWATCH_SUPERVISOR_COOLDOWN", "PRICEWATCH_LISTEN_HTTP",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "pricewatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), `
worker:
  path: /srv/scraper/env/bin/python
  script: /srv/scraper/main.py
  config: /srv/scraper/config.json
  env:
    API_TOKEN: secret
supervisor:
  cooldown: 5m
  max_imports: 2
listen:
  http: ""
log:
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Worker.Path != "/srv/scraper/env/bin/python" {
		t.Errorf("worker.path: got %q", cfg.Worker.Path)
	}
	if cfg.Worker.Script != "/srv/scraper/main.py" {
		t.Errorf("worker.script: got %q", cfg.Worker.Script)
	}
	if cfg.Worker.Env["API_TOKEN"] != "secret" {
		t.Errorf("worker.env: got %v", cfg.Worker.Env)
	}
	if cfg.Supervisor.Cooldown != 5*time.Minute {
		t.Errorf("cooldown: got %s", cfg.Supervisor.Cooldown)
	}
	if cfg.Supervisor.MaxImports != 2 {
		t.Errorf("max_imports: got %d", cfg.Supervisor.MaxImports)
	}
	// Defaults fill what the file leaves out
	if cfg.Supervisor.LogCapacity != 1000 {
		t.Errorf("log_capacity: got %d", cfg.Supervisor.LogCapacity)
	}
	if cfg.Supervisor.StopGrace != 10*time.Second {
		t.Errorf("stop_grace: got %s", cfg.Supervisor.StopGrace)
	}
	if cfg.Listen.HTTP != "" {
		t.Errorf("listen.http: expected disabled, got %q", cfg.Listen.HTTP)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log.format: got %q", cfg.Log.Format)
	}
	if cfg.File != path {
		t.Errorf("file: got %q, want %q", cfg.File, path)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "worker: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "worker:\n  path: /from/file\n")

	t.Setenv("PRICEWATCH_WORKER_PATH", "/from/env")
	t.Setenv("PRICEWATCH_SUPERVISOR_COOLDOWN", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Worker.Path != "/from/env" {
		t.Errorf("worker.path: got %q", cfg.Worker.Path)
	}
	if cfg.Supervisor.Cooldown != 90*time.Second {
		t.Errorf("cooldown: got %s", cfg.Supervisor.Cooldown)
	}
}

func TestLoadLegacyEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "log:\n  level: debug\n")

	t.Setenv("PYTHON_ENV_PATH", "/venv/bin/python")
	t.Setenv("SCRAPER_PATH", "/srv/main.py")
	t.Setenv("SCRAPER_CONFIG_PATH", "/srv/config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Worker.Path != "/venv/bin/python" || cfg.Worker.Script != "/srv/main.py" || cfg.Worker.Config != "/srv/config.json" {
		t.Errorf("legacy env not applied: %+v", cfg.Worker)
	}
	if len(cfg.Worker.Missing()) != 0 {
		t.Errorf("unexpected missing: %v", cfg.Worker.Missing())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Worker.Path = "/usr/bin/python3"
	cfg.Worker.Config = "/srv/config.json"
	cfg.Worker.Env["PYTHONUNBUFFERED"] = "1"
	cfg.Supervisor.Cooldown = 45 * time.Minute

	path := filepath.Join(t.TempDir(), "sub", "pricewatch.yaml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "cooldown: 45m0s") {
		t.Errorf("expected string duration in output:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Supervisor.Cooldown != 45*time.Minute {
		t.Errorf("cooldown: got %s", loaded.Supervisor.Cooldown)
	}
	if loaded.Worker.Env["PYTHONUNBUFFERED"] != "1" {
		t.Errorf("env: got %v", loaded.Worker.Env)
	}
	if loaded.Worker.Path != cfg.Worker.Path {
		t.Errorf("path: got %q", loaded.Worker.Path)
	}
}
