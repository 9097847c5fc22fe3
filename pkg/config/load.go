package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment override, e.g. PRICEWATCH_WORKER_PATH.
	EnvPrefix = "PRICEWATCH"
	// FileName is the config file name without extension.
	FileName = "pricewatch"
)

// legacyEnv maps keys to the variable names used by older deployments.
var legacyEnv = map[string]string{
	"worker.path":   "PYTHON_ENV_PATH",
	"worker.script": "SCRAPER_PATH",
	"worker.config": "SCRAPER_CONFIG_PATH",
}

// SearchPaths returns the directories searched when no file is given.
func SearchPaths() []string {
	var dirs []string
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "pricewatch"))
	}
	return append(dirs, "/etc/pricewatch", ".")
}

// Load reads configuration from path, or from the search paths when path is
// empty. A missing default file is not an error; a missing explicit file is.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		for _, dir := range SearchPaths() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.File != "" {
		env, err := readWorkerEnv(cfg.File)
		if err != nil {
			return nil, err
		}
		if env != nil {
			cfg.Worker.Env = env
		}
	}
	if cfg.Worker.Env == nil {
		cfg.Worker.Env = map[string]string{}
	}
	return &cfg, nil
}

// readWorkerEnv re-reads worker.env from the file because viper folds map
// keys to lower case and environment variable names are case sensitive.
func readWorkerEnv(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var doc struct {
		Worker struct {
			Env map[string]string `yaml:"env"`
		} `yaml:"worker"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc.Worker.Env, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("worker.path", cfg.Worker.Path)
	v.SetDefault("worker.script", cfg.Worker.Script)
	v.SetDefault("worker.config", cfg.Worker.Config)
	v.SetDefault("worker.args", cfg.Worker.Args)
	v.SetDefault("worker.env", cfg.Worker.Env)
	v.SetDefault("worker.dir", cfg.Worker.Dir)

	v.SetDefault("supervisor.log_capacity", cfg.Supervisor.LogCapacity)
	v.SetDefault("supervisor.cooldown", cfg.Supervisor.Cooldown)
	v.SetDefault("supervisor.stop_grace", cfg.Supervisor.StopGrace)
	v.SetDefault("supervisor.max_imports", cfg.Supervisor.MaxImports)

	v.SetDefault("listen.socket", cfg.Listen.Socket)
	v.SetDefault("listen.http", cfg.Listen.HTTP)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.journal", cfg.Log.Journal)
}
