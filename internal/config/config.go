// Package config resolves settings from defaults, an optional .env file and
// ENROLL_* environment variables. Command-line flags override on top.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	// Folders
	SourceDir    string `envconfig:"SOURCE_DIR" default:"images"`
	DatabaseDir  string `envconfig:"DATABASE_DIR" default:"stored-faces"`
	BlacklistDir string `envconfig:"BLACKLIST_DIR" default:"black_listed"`
	LogFile      string `envconfig:"LOG_FILE" default:"processed_log.txt"`

	// Matching
	Tolerance float64 `envconfig:"TOLERANCE" default:"0.55"`

	// Cropping
	MonitorPadding int     `envconfig:"MONITOR_PADDING" default:"30"`
	BuildPadding   int     `envconfig:"BUILD_PADDING" default:"50"`
	AspectRatio    float64 `envconfig:"ASPECT_RATIO" default:"0.80"`

	// Monitor loop
	Interval time.Duration `envconfig:"INTERVAL" default:"10s"`

	// Extraction engine
	Python        string        `envconfig:"PYTHON" default:"python3"`
	WorkerScript  string        `envconfig:"WORKER_SCRIPT" default:"python/worker.py"`
	Model         string        `envconfig:"MODEL" default:"hog"`
	WorkerTimeout time.Duration `envconfig:"WORKER_TIMEOUT" default:"60s"`

	// Journal, disabled when empty
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// Load reads .env if present, then the ENROLL_* environment.
func Load() (*Config, error) {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("enroll", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the numeric knobs after flags have been applied.
func (c *Config) Validate() error {
	switch {
	case c.Tolerance <= 0:
		return fmt.Errorf("tolerance must be positive, got %v", c.Tolerance)
	case c.MonitorPadding < 0 || c.BuildPadding < 0:
		return fmt.Errorf("padding must not be negative")
	case c.AspectRatio <= 0:
		return fmt.Errorf("aspect ratio must be positive, got %v", c.AspectRatio)
	case c.Interval <= 0:
		return fmt.Errorf("poll interval must be positive, got %v", c.Interval)
	case c.WorkerTimeout < 0:
		return fmt.Errorf("worker timeout must not be negative, got %v", c.WorkerTimeout)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
