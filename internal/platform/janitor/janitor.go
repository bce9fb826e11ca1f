package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TempCleaner removes temp files older than maxAge and reports how many
// were removed. blobstore.DiskStore satisfies it.
type TempCleaner interface {
	CleanStaleTemp(maxAge time.Duration) (int, error)
}

// Janitor periodically sweeps stale temp files out of the photo store.
type Janitor struct {
	cleaner  TempCleaner
	interval time.Duration
	maxAge   time.Duration
	logger   zerolog.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

type Config struct {
	Cleaner  TempCleaner
	Interval time.Duration
	MaxAge   time.Duration
	Logger   zerolog.Logger
}

func New(cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 15 * time.Minute
	}
	return &Janitor{
		cleaner:  cfg.Cleaner,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		logger:   cfg.Logger.With().Str("component", "janitor").Logger(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start runs a sweep immediately and then once per interval until Stop is
// called or ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	go j.run(ctx)
}

// Stop signals the loop and waits for the current sweep to finish.
// It must be called at most once, after Start.
func (j *Janitor) Stop() {
	close(j.stopChan)
	<-j.doneChan
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneChan)

	j.sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopChan:
			j.logger.Debug().Msg("stop signal received")
			return
		case <-ctx.Done():
			j.logger.Debug().Msg("context cancelled")
			return
		}
	}
}

func (j *Janitor) sweep() {
	start := time.Now()
	removed, err := j.cleaner.CleanStaleTemp(j.maxAge)
	if err != nil {
		j.logger.Warn().Err(err).Int("removed", removed).Msg("temp cleanup failed")
		return
	}
	ev := j.logger.Debug()
	if removed > 0 {
		ev = j.logger.Info()
	}
	ev.Int("removed", removed).Dur("took", time.Since(start)).Msg("temp cleanup completed")
}
