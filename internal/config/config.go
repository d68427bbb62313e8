// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables on top of the defaults.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ShardCount configures the number of shards in the session store.
	ShardCount int `koanf:"shard_count"`

	// ConfusionWindow is how long raw confusion must persist before it is reported.
	ConfusionWindow time.Duration `koanf:"confusion_window"`

	// GazeWindow is how long gaze may stay off-center before GAZE_AWAY.
	GazeWindow time.Duration `koanf:"gaze_window"`

	// Classifier thresholds.
	SmileThreshold float64 `koanf:"smile_threshold"`
	BrowThreshold  float64 `koanf:"brow_threshold"`
	SmileCeiling   float64 `koanf:"smile_ceiling"`

	// SurfaceGazeAway turns a sustained GAZE_AWAY into DISTRACTED/GAZE_AWAY.
	SurfaceGazeAway bool `koanf:"surface_gaze_away"`

	// BroadcastQueueSize bounds the in-memory update queue.
	BroadcastQueueSize int `koanf:"broadcast_queue_size"`

	// DispatchWorkers sets the number of broadcast dispatchers.
	DispatchWorkers int `koanf:"dispatch_workers"`

	// SendTimeout bounds a single push to one observer.
	SendTimeout time.Duration `koanf:"send_timeout"`

	// DedupeSize sets how many recent frame ids are remembered. Zero disables dedupe.
	DedupeSize int `koanf:"dedupe_size"`

	// OfflineAfter marks a silent subject OFFLINE. Zero disables.
	OfflineAfter time.Duration `koanf:"offline_after"`

	// SubjectTTL evicts a silent subject. Zero disables.
	SubjectTTL time.Duration `koanf:"subject_ttl"`

	// SweepInterval is how often the retention sweep runs.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// AllowedOrigins lists dashboard origins for CORS and websocket upgrades.
	// "*" allows any origin.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":8000",
		ShardCount:         16,
		ConfusionWindow:    time.Second,
		GazeWindow:         3 * time.Second,
		SmileThreshold:     0.5,
		BrowThreshold:      0.35,
		SmileCeiling:       0.3,
		SurfaceGazeAway:    false,
		BroadcastQueueSize: 10_000,
		DispatchWorkers:    runtime.NumCPU(),
		SendTimeout:        2 * time.Second,
		DedupeSize:         100_000,
		OfflineAfter:       10 * time.Second,
		SubjectTTL:         30 * time.Minute,
		SweepInterval:      time.Second,
		AllowedOrigins:     []string{"http://localhost:3000"},
	}
}
