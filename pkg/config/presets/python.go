package presets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/modoterra/pricewatch/pkg/config"
)

// GeneratePython creates a config for a Python scraper checkout at root.
func GeneratePython(root string) (*config.Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	// Verify it's a scraper checkout
	script := filepath.Join(absRoot, "main.py")
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%s does not appear to be a scraper checkout (no main.py)", absRoot)
	}

	cfg := config.Default()
	cfg.Worker.Script = script
	cfg.Worker.Dir = absRoot

	// Interpreter: prefer a virtualenv next to the script
	for _, venv := range []string{"env", ".venv", "venv"} {
		for _, name := range []string{"python3", "python"} {
			p := filepath.Join(absRoot, venv, "bin", name)
			if isExecutable(p) {
				cfg.Worker.Path = p
				break
			}
		}
		if cfg.Worker.Path != "" {
			break
		}
	}
	if cfg.Worker.Path == "" {
		for _, name := range []string{"/usr/bin/python3", "/usr/local/bin/python3"} {
			if isExecutable(name) {
				cfg.Worker.Path = name
				break
			}
		}
	}

	// Scraper config file
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		p := filepath.Join(absRoot, name)
		if _, err := os.Stat(p); err == nil {
			cfg.Worker.Config = p
			break
		}
	}

	// Unbuffered output so lines reach the log as they are printed
	cfg.Worker.Env["PYTHONUNBUFFERED"] = "1"

	return cfg, nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
