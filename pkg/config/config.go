// Package config describes how pricewatchd finds and runs the scraper worker.
package config

import (
	"slices"
	"time"
)

// Worker modes appended to the worker command line.
const (
	ModeScrape = "scrape"
	ModeImport = "import"
)

// Config represents a pricewatch.yaml configuration file.
type Config struct {
	Worker     Worker     `mapstructure:"worker"     yaml:"worker"     json:"worker"`
	Supervisor Supervisor `mapstructure:"supervisor" yaml:"supervisor" json:"supervisor"`
	Listen     Listen     `mapstructure:"listen"     yaml:"listen"     json:"listen"`
	Log        Log        `mapstructure:"log"        yaml:"log"        json:"log"`

	// File is the configuration file the values were read from, if any.
	File string `mapstructure:"-" yaml:"-" json:"file,omitempty"`
}

// Worker is the external scraper process.
type Worker struct {
	Path   string            `mapstructure:"path"   yaml:"path"             json:"path"`
	Script string            `mapstructure:"script" yaml:"script,omitempty" json:"script,omitempty"`
	Config string            `mapstructure:"config" yaml:"config"           json:"config"`
	Args   []string          `mapstructure:"args"   yaml:"args,omitempty"   json:"args,omitempty"`
	Env    map[string]string `mapstructure:"env"    yaml:"env,omitempty"    json:"env,omitempty"`
	Dir    string            `mapstructure:"dir"    yaml:"dir,omitempty"    json:"dir,omitempty"`
}

// Supervisor holds restart and capacity settings.
type Supervisor struct {
	LogCapacity int           `mapstructure:"log_capacity" yaml:"log_capacity" json:"log_capacity"`
	Cooldown    time.Duration `mapstructure:"cooldown"     yaml:"cooldown"     json:"cooldown"`
	StopGrace   time.Duration `mapstructure:"stop_grace"   yaml:"stop_grace"   json:"stop_grace"`
	MaxImports  int           `mapstructure:"max_imports"  yaml:"max_imports"  json:"max_imports"`
}

// Listen holds the daemon's endpoints. An empty HTTP address disables the API.
type Listen struct {
	Socket string `mapstructure:"socket" yaml:"socket" json:"socket"`
	HTTP   string `mapstructure:"http"   yaml:"http"   json:"http"`
}

// Log controls the daemon's own logging.
type Log struct {
	Level   string `mapstructure:"level"   yaml:"level"   json:"level"`
	Format  string `mapstructure:"format"  yaml:"format"  json:"format"`
	Journal bool   `mapstructure:"journal" yaml:"journal" json:"journal"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Worker: Worker{
			Env: map[string]string{},
		},
		Supervisor: Supervisor{
			LogCapacity: 1000,
			Cooldown:    30 * time.Minute,
			StopGrace:   10 * time.Second,
			MaxImports:  4,
		},
		Listen: Listen{
			Socket: "/tmp/pricewatch.sock",
			HTTP:   "127.0.0.1:5001",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Missing lists the required worker settings that are empty.
func (w Worker) Missing() []string {
	var missing []string
	if w.Path == "" {
		missing = append(missing, "worker.path")
	}
	if w.Config == "" {
		missing = append(missing, "worker.config")
	}
	return missing
}

// Command returns the argument list for a run in the given mode:
// [script] [args...] <config> <mode> [extra...].
func (w Worker) Command(mode string, extra ...string) []string {
	var args []string
	if w.Script != "" {
		args = append(args, w.Script)
	}
	args = append(args, w.Args...)
	args = append(args, w.Config, mode)
	return append(args, extra...)
}

// Environ returns Env as sorted KEY=VALUE pairs.
func (w Worker) Environ() []string {
	keys := make([]string, 0, len(w.Env))
	for k := range w.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+w.Env[k])
	}
	return env
}
