package config

import "fmt"

// Validate checks the configuration for structural correctness. Missing
// worker settings are not errors; see Worker.Missing.
func Validate(cfg *Config) []error {
	var errs []error

	s := cfg.Supervisor
	if s.LogCapacity <= 0 {
		errs = append(errs, fmt.Errorf("supervisor.log_capacity must be positive, got %d", s.LogCapacity))
	}
	if s.Cooldown <= 0 {
		errs = append(errs, fmt.Errorf("supervisor.cooldown must be positive, got %s", s.Cooldown))
	}
	if s.StopGrace < 0 {
		errs = append(errs, fmt.Errorf("supervisor.stop_grace must not be negative, got %s", s.StopGrace))
	}
	if s.MaxImports < 0 {
		errs = append(errs, fmt.Errorf("supervisor.max_imports must not be negative, got %d", s.MaxImports))
	}

	if cfg.Listen.Socket == "" {
		errs = append(errs, fmt.Errorf("listen.socket is required"))
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error; got %q", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json; got %q", cfg.Log.Format))
	}

	for k := range cfg.Worker.Env {
		if k == "" {
			errs = append(errs, fmt.Errorf("worker.env: empty variable name"))
		}
	}

	return errs
}
