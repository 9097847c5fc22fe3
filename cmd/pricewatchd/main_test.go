package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricewatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "pricewatchd ") {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
listen:
  socket: /tmp/from-file.sock
  http: 127.0.0.1:9000
`)

	cfg, err := loadConfig(options{configPath: path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen.Socket != "/tmp/from-file.sock" || cfg.Listen.HTTP != "127.0.0.1:9000" {
		t.Errorf("listen = %+v", cfg.Listen)
	}

	cfg, err = loadConfig(options{configPath: path, socket: "/tmp/flag.sock", httpSet: true})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen.Socket != "/tmp/flag.sock" {
		t.Errorf("socket = %q, want flag value", cfg.Listen.Socket)
	}
	if cfg.Listen.HTTP != "" {
		t.Errorf("http = %q, want disabled", cfg.Listen.HTTP)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := writeConfig(t, `
supervisor:
  log_capacity: 0
`)
	_, err := loadConfig(options{configPath: path})
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("err = %v, want invalid config", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(options{configPath: filepath.Join(t.TempDir(), "nope.yaml")}); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}
