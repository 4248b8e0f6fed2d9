// Package orchestrator splits a slot span into ranges and runs them through a
// bounded pool of workers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rexbrahh/ix-decoder/observability"
)

// Range is the half-open slot window [StartSlot, EndSlot).
type Range struct {
	StartSlot uint64
	EndSlot   uint64
}

func (r Range) valid() bool {
	return r.EndSlot > r.StartSlot
}

// Len is the number of slots in the range.
func (r Range) Len() uint64 {
	if !r.valid() {
		return 0
	}
	return r.EndSlot - r.StartSlot
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.StartSlot, r.EndSlot)
}

// RangeProcessor fetches, decodes and publishes every slot of one range.
type RangeProcessor func(context.Context, Range) error

type Orchestrator struct {
	cfg       Config
	processor RangeProcessor
	logger    *zap.Logger
	metrics   *metrics
}

type Option func(*Orchestrator)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Orchestrator) {
		o.metrics = newMetrics(reg)
	}
}

// New validates cfg and binds the processor every range is handed to.
func New(cfg Config, processor RangeProcessor, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if processor == nil {
		return nil, errors.New("range processor must not be nil")
	}
	o := &Orchestrator{cfg: cfg, processor: processor, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = newMetrics(nil)
	}
	return o, nil
}

// Run schedules the configured span and blocks until every range is done,
// one range fails, or ctx is cancelled. The first failure cancels the rest.
func (o *Orchestrator) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, ctx := errgroup.WithContext(ctx)
	workCh := make(chan Range)

	g.Go(func() error {
		defer close(workCh)
		return o.schedule(ctx, workCh)
	})

	for i := 0; i < o.cfg.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			for rng := range workCh {
				started := time.Now()
				if err := o.processor(ctx, rng); err != nil {
					o.metrics.ranges.WithLabelValues("failed").Inc()
					return fmt.Errorf("range %d-%d: %w", rng.StartSlot, rng.EndSlot, err)
				}
				o.metrics.ranges.WithLabelValues("done").Inc()
				o.metrics.duration.Observe(time.Since(started).Seconds())
				o.logger.Debug("range complete",
					zap.Int("worker", worker),
					zap.Stringer("range", rng),
					zap.Duration("took", time.Since(started)),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return err
	}
	o.logger.Info("backfill complete",
		zap.Uint64("start_slot", o.cfg.StartSlot),
		zap.Uint64("end_slot", o.cfg.EndSlot),
	)
	return nil
}

func (o *Orchestrator) schedule(ctx context.Context, workCh chan<- Range) error {
	start := o.cfg.StartSlot
	limit := o.cfg.EndSlot
	hasLimit := limit != 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if hasLimit && start >= limit {
			return nil
		}

		batchEnd, overflow := addWithOverflow(start, o.cfg.BatchSize)
		if hasLimit && batchEnd > limit {
			batchEnd = limit
		}

		rng := Range{StartSlot: start, EndSlot: batchEnd}
		if !rng.valid() {
			if overflow {
				return nil
			}
			return fmt.Errorf("invalid range produced: start=%d end=%d", start, batchEnd)
		}

		select {
		case workCh <- rng:
		case <-ctx.Done():
			return ctx.Err()
		}

		start = batchEnd
		if !hasLimit && overflow {
			return nil
		}
	}
}

func (o *Orchestrator) Config() Config {
	return o.cfg
}

func addWithOverflow(start uint64, delta uint64) (uint64, bool) {
	if delta == 0 {
		return start, false
	}
	if math.MaxUint64-start < delta {
		return math.MaxUint64, true
	}
	return start + delta, false
}

type metrics struct {
	ranges   *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &metrics{
		ranges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Name:      observability.MetricBackfillRanges,
			Help:      "Backfill ranges by outcome.",
		}, []string{"status"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: observability.Namespace,
			Name:      observability.MetricBackfillDuration,
			Help:      "Wall time spent on one backfill range.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}
