// Package sampler runs the timed collection loop: one sample per tick,
// appended to a store, for a fixed number of ticks.
package sampler

import (
	"context"
	"fmt"
	"perfsampler/collector"
	"perfsampler/logger"
	"perfsampler/storage"
	"time"

	"go.uber.org/zap"
)

// Config is the schedule of one run.
type Config struct {
	Duration time.Duration // total sampling time
	Interval time.Duration // time between tick starts
}

// Iterations is the number of ticks in a run: Duration / Interval, rounded
// down.
func (c Config) Iterations() int {
	if c.Interval <= 0 {
		return 0
	}
	return int(c.Duration / c.Interval)
}

// Validate rejects schedules that cannot be run.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative, got %s", c.Duration)
	}
	return nil
}

// Clock abstracts wall time so tests can run a two-hour schedule instantly.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result summarizes a finished run.
type Result struct {
	Ticks    int              // samples written
	Started  time.Time        // schedule origin
	Finished time.Time        // zero unless every tick ran
	Last     collector.Sample // most recent sample, zero when Ticks == 0
}

// Sampler drives a Collector on a drift-correcting schedule and appends
// every sample to a Store.
type Sampler struct {
	cfg   Config
	coll  collector.Collector
	store storage.Store
	clock Clock
}

// Option customizes a Sampler.
type Option func(*Sampler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Sampler) { s.clock = c }
}

// New returns a sampler; it does not take ownership of store.
func New(cfg Config, coll collector.Collector, store storage.Store, opts ...Option) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sampler{cfg: cfg, coll: coll, store: store, clock: realClock{}}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Run executes Iterations() ticks. After tick k the sampler sleeps until
// k*Interval past the start, so time spent collecting does not accumulate
// into drift; when already behind it starts the next tick at once.
// The first error from the collector, the store or ctx ends the run.
func (s *Sampler) Run(ctx context.Context) (Result, error) {
	log := logger.FromContext(ctx, nil)
	iterations := s.cfg.Iterations()
	res := Result{Started: s.clock.Now()}

	log.Info("sampling started",
		zap.Int("iterations", iterations),
		zap.Duration("interval", s.cfg.Interval))

	for res.Ticks < iterations {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		smp, err := s.coll.Collect(ctx)
		if err != nil {
			return res, fmt.Errorf("tick %d: %w", res.Ticks+1, err)
		}
		if err := s.store.Append(ctx, smp); err != nil {
			return res, fmt.Errorf("tick %d: %w", res.Ticks+1, err)
		}
		res.Ticks++
		res.Last = smp

		target := time.Duration(res.Ticks) * s.cfg.Interval
		elapsed := s.clock.Now().Sub(res.Started)
		wait := target - elapsed
		log.Debug("tick", zap.Int("tick", res.Ticks), zap.Duration("wait", wait))
		if wait <= 0 {
			continue
		}
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return res, err
		}
	}

	res.Finished = s.clock.Now()
	log.Info("sampling finished",
		zap.Int("ticks", res.Ticks),
		zap.Duration("elapsed", res.Finished.Sub(res.Started)))
	return res, nil
}
