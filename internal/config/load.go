package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigFile = "bskysweep.yaml"
	envFile           = ".env"
)

// LoadEnv pulls variables from a local .env file into the process
// environment. Values already set in the environment win.
func LoadEnv(logger *slog.Logger) {
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		logger.Warn("failed to load env file", "file", envFile, "error", err)
		return
	}
	logger.Debug("loaded env file", "file", envFile)
}

// Load builds the effective configuration. The YAML file is optional:
// an empty path falls back to bskysweep.yaml in the working directory
// when present. Environment variables override file values, and
// defaults fill whatever remains unset.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies BSKYSWEEP_* environment variables on top
// of file values. Unparseable numeric values are ignored.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("BSKYSWEEP_HANDLE"); val != "" {
		cfg.Handle = val
	}
	if val := os.Getenv("BSKYSWEEP_PASSWORD"); val != "" {
		cfg.Password = val
	}
	if val := os.Getenv("BSKYSWEEP_PDS"); val != "" {
		cfg.PDS = val
	}
	if val := os.Getenv("BSKYSWEEP_JETSTREAM_URL"); val != "" {
		cfg.JetstreamURL = val
	}
	if val := os.Getenv("BSKYSWEEP_SCHEDULE"); val != "" {
		cfg.Schedule = val
	}
	if val := os.Getenv("BSKYSWEEP_BACKUP_FILE"); val != "" {
		cfg.Output.BackupFile = val
	}
	if val := os.Getenv("BSKYSWEEP_RECORD_LOG"); val != "" {
		cfg.Output.RecordLog = val
	}
	if val := os.Getenv("BSKYSWEEP_ARCHIVE_DB"); val != "" {
		cfg.Output.ArchiveDB = val
	}
	if val := os.Getenv("BSKYSWEEP_PAGE_LIMIT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Sweep.PageLimit = i
		}
	}
	if val := os.Getenv("BSKYSWEEP_RETRY_MAX_ATTEMPTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Retry.MaxAttempts = i
		}
	}
	if val := os.Getenv("BSKYSWEEP_RETRY_BASE_BACKOFF"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Retry.BaseBackoff = d
		}
	}
	if val := os.Getenv("BSKYSWEEP_RETRY_MAX_BACKOFF"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Retry.MaxBackoff = d
		}
	}
}
