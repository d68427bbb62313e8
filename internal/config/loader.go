package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "SMARTSESSION_"
	envFileVar = "SMARTSESSION_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SMARTSESSION_CONFIG is set
//  3. env (prefix SMARTSESSION_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SMARTSESSION_CONFUSION_WINDOW -> confusion_window (flat keys).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	// Slices decode in place; start empty so a shorter list fully replaces the default.
	cfg := *base
	cfg.AllowedOrigins = nil
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = base.AllowedOrigins
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot run.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ShardCount < 1:
		return fmt.Errorf("%w: shard_count must be positive, got %d", ErrInvalidConfig, c.ShardCount)
	case c.ConfusionWindow <= 0:
		return fmt.Errorf("%w: confusion_window must be positive, got %s", ErrInvalidConfig, c.ConfusionWindow)
	case c.GazeWindow <= 0:
		return fmt.Errorf("%w: gaze_window must be positive, got %s", ErrInvalidConfig, c.GazeWindow)
	case !unit(c.SmileThreshold), !unit(c.BrowThreshold), !unit(c.SmileCeiling):
		return fmt.Errorf("%w: thresholds must lie in [0,1]", ErrInvalidConfig)
	case c.BroadcastQueueSize < 1:
		return fmt.Errorf("%w: broadcast_queue_size must be positive", ErrInvalidConfig)
	case c.DispatchWorkers < 1:
		return fmt.Errorf("%w: dispatch_workers must be positive", ErrInvalidConfig)
	case c.SendTimeout <= 0:
		return fmt.Errorf("%w: send_timeout must be positive", ErrInvalidConfig)
	case c.DedupeSize < 0:
		return fmt.Errorf("%w: dedupe_size must not be negative", ErrInvalidConfig)
	case c.OfflineAfter < 0, c.SubjectTTL < 0:
		return fmt.Errorf("%w: retention durations must not be negative", ErrInvalidConfig)
	case (c.OfflineAfter > 0 || c.SubjectTTL > 0) && c.SweepInterval <= 0:
		return fmt.Errorf("%w: sweep_interval must be positive when retention is enabled", ErrInvalidConfig)
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }
