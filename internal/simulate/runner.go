// Package simulate drives a running service with scripted subjects and
// checks that the roster ends up where each script says it should.
package simulate

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/smartsession/pkg/logger"
)

// Default run parameters.
const (
	DefaultFrames   = 15
	DefaultInterval = 100 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
	DefaultSession  = "sim-room"
)

// subject is one simulated student.
type subject struct {
	id       string
	scenario Scenario
}

// Report is the outcome of a run.
type Report struct {
	Stats      Stats
	Mismatches []Mismatch
}

// Run checks the service health, streams every subject's frames and then
// verifies the roster. A non-empty mismatch list is returned as an
// ErrVerification error alongside the report.
func Run(ctx context.Context, config *Config) (*Report, error) {
	cfg := withDefaults(*config)
	log := logger.Get().Named("simulate")
	report := &Report{Stats: Stats{StartTime: time.Now()}}

	selected, err := Lookup(cfg.Scenarios)
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("subjectsPerScenario", cfg.Subjects),
		logger.Int("frames", cfg.Frames),
		logger.Duration("interval", cfg.Interval),
		logger.Int("workers", cfg.Workers),
		logger.Any("scenarios", cfg.Scenarios),
	)

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	subjects := make([]subject, 0, len(selected)*cfg.Subjects)
	for _, sc := range selected {
		for i := 0; i < cfg.Subjects; i++ {
			subjects = append(subjects, subject{
				id:       fmt.Sprintf("%s-%s", sc.Name, uuid.NewString()[:8]),
				scenario: sc,
			})
		}
	}

	streamSubjects(ctx, client, &cfg, subjects, &report.Stats)

	roster, err := client.Roster(ctx)
	if err != nil {
		return nil, fmt.Errorf("roster retrieval failed: %w", err)
	}
	report.Mismatches = verifyRoster(roster, subjects)
	report.Stats.SubjectsVerified = len(subjects) - len(report.Mismatches)
	report.Stats.Mismatches = len(report.Mismatches)

	report.Stats.EndTime = time.Now()
	report.Stats.Duration = report.Stats.EndTime.Sub(report.Stats.StartTime)
	logStats(ctx, log, &report.Stats)

	if len(report.Mismatches) > 0 {
		for _, m := range report.Mismatches {
			log.Warn(ctx, "roster mismatch", logger.String("subject_id", m.SubjectID), logger.String("detail", m.String()))
		}
		return report, fmt.Errorf("%w: %d of %d subjects", ErrVerification, len(report.Mismatches), len(subjects))
	}
	log.Info(ctx, "simulation completed successfully")
	return report, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Session == "" {
		cfg.Session = DefaultSession
	}
	if cfg.Subjects < 1 {
		cfg.Subjects = 1
	}
	if cfg.Frames < 1 {
		cfg.Frames = DefaultFrames
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg
}

// streamSubjects runs up to cfg.Workers subjects at once. Each subject sends
// its frames in order, cfg.Interval apart, so its timers see real elapsed time.
func streamSubjects(ctx context.Context, client *HTTPClient, cfg *Config, subjects []subject, stats *Stats) {
	log := logger.Get().Named("simulate")
	var submitted, successful, failed int64

	work := make(chan subject, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				for n := 0; n < cfg.Frames; n++ {
					if ctx.Err() != nil {
						return
					}
					f := Frame{
						StudentID: s.id,
						SessionID: cfg.Session,
						FrameID:   fmt.Sprintf("%s-%d", s.id, n),
						FaceCount: s.scenario.Observation.FaceCount,
						Metrics:   s.scenario.Observation.Metrics,
					}
					atomic.AddInt64(&submitted, 1)
					st, err := client.PostFrame(ctx, f)
					if err != nil {
						atomic.AddInt64(&failed, 1)
						log.Warn(ctx, "frame failed", logger.String("subject_id", s.id), logger.Error(err))
					} else {
						atomic.AddInt64(&successful, 1)
						if cfg.Verbose {
							log.Info(ctx, "frame processed",
								logger.String("subject_id", s.id),
								logger.Int("frame", n),
								logger.String("status", string(st.Status)),
								logger.String("alert", string(st.Alert)),
							)
						}
					}
					if n < cfg.Frames-1 {
						select {
						case <-ctx.Done():
							return
						case <-time.After(cfg.Interval):
						}
					}
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, s := range subjects {
			select {
			case <-ctx.Done():
				return
			case work <- s:
			}
		}
	}()
	wg.Wait()

	stats.FramesSubmitted = int(atomic.LoadInt64(&submitted))
	stats.FramesSuccessful = int(atomic.LoadInt64(&successful))
	stats.FramesFailed = int(atomic.LoadInt64(&failed))
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var framesPerSecond float64
	if stats.Duration > 0 {
		framesPerSecond = float64(stats.FramesSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("framesSubmitted", stats.FramesSubmitted),
		logger.Int("framesSuccessful", stats.FramesSuccessful),
		logger.Int("framesFailed", stats.FramesFailed),
		logger.Int("subjectsVerified", stats.SubjectsVerified),
		logger.Int("mismatches", stats.Mismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("framesPerSecond", framesPerSecond),
	)
}
