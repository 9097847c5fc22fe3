package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestUnitContents(t *testing.T) {
	got := UnitContents(Unit{Binary: "/usr/local/bin/pricewatchd"})

	for _, want := range []string{
		"ExecStart=/usr/local/bin/pricewatchd\n",
		"Type=notify",
		"WatchdogSec=30",
		"Restart=on-failure",
		"[Install]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("unit file missing %q", want)
		}
	}
}

func TestUnitContentsWithConfig(t *testing.T) {
	got := UnitContents(Unit{
		Binary:   "/usr/local/bin/pricewatchd",
		Config:   "/etc/pricewatch/pricewatch.yaml",
		Watchdog: time.Minute,
	})
	if !strings.Contains(got, "ExecStart=/usr/local/bin/pricewatchd --config /etc/pricewatch/pricewatch.yaml") {
		t.Errorf("unit file missing --config argument:\n%s", got)
	}
	if !strings.Contains(got, "WatchdogSec=60") {
		t.Errorf("unit file missing custom watchdog:\n%s", got)
	}
}

func TestUnitPath(t *testing.T) {
	path, err := UnitPath()
	if err != nil {
		t.Fatalf("UnitPath() error: %v", err)
	}
	if !strings.HasSuffix(path, "systemd/user/pricewatchd.service") {
		t.Errorf("UnitPath() = %q, want suffix systemd/user/pricewatchd.service", path)
	}
}

func TestStatusNoSocket(t *testing.T) {
	got := Status(filepath.Join(t.TempDir(), "missing.sock"))
	if !strings.Contains(got, "socket: inactive") {
		t.Errorf("Status() should report inactive socket, got: %s", got)
	}
}

func TestStatusWithSocket(t *testing.T) {
	// A regular file stands in for the socket
	path := filepath.Join(t.TempDir(), "pricewatch.sock")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	got := Status(path)
	if !strings.Contains(got, "socket: active") {
		t.Errorf("Status() should report active socket, got: %s", got)
	}
}
