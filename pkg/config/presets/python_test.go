package presets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/modoterra/pricewatch/pkg/config"
)

func TestGeneratePython_Minimal(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')\n"), 0644)

	cfg, err := GeneratePython(dir)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if cfg.Worker.Script != filepath.Join(dir, "main.py") {
		t.Errorf("script: got %q", cfg.Worker.Script)
	}
	if cfg.Worker.Dir != dir {
		t.Errorf("dir: got %q", cfg.Worker.Dir)
	}
	if cfg.Worker.Config != "" {
		t.Errorf("config: expected empty, got %q", cfg.Worker.Config)
	}
	if cfg.Worker.Env["PYTHONUNBUFFERED"] != "1" {
		t.Errorf("expected PYTHONUNBUFFERED=1, got %v", cfg.Worker.Env)
	}

	if errs := config.Validate(cfg); len(errs) != 0 {
		t.Errorf("validation errors: %v", errs)
	}
}

func TestGeneratePython_WithVirtualenvAndConfig(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.py"), []byte(""), 0644)
	os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0644)
	os.MkdirAll(filepath.Join(dir, ".venv", "bin"), 0755)
	python := filepath.Join(dir, ".venv", "bin", "python3")
	os.WriteFile(python, []byte("#!/bin/sh\n"), 0755)

	cfg, err := GeneratePython(dir)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Worker.Path != python {
		t.Errorf("path: got %q, want %q", cfg.Worker.Path, python)
	}
	if cfg.Worker.Config != filepath.Join(dir, "config.json") {
		t.Errorf("config: got %q", cfg.Worker.Config)
	}
	if missing := cfg.Worker.Missing(); len(missing) != 0 {
		t.Errorf("unexpected missing settings: %v", missing)
	}
}

func TestGeneratePython_IgnoresNonExecutableInterpreter(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.py"), []byte(""), 0644)
	os.MkdirAll(filepath.Join(dir, "env", "bin"), 0755)
	os.WriteFile(filepath.Join(dir, "env", "bin", "python3"), []byte(""), 0644)

	cfg, err := GeneratePython(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Worker.Path == filepath.Join(dir, "env", "bin", "python3") {
		t.Error("non-executable interpreter should not be selected")
	}
}

func TestGeneratePython_NotACheckout(t *testing.T) {
	dir := t.TempDir()
	if _, err := GeneratePython(dir); err == nil {
		t.Error("expected error for directory without main.py")
	}
}
