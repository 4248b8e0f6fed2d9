package geyser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rexbrahh/ix-decoder/decoder/registry"
	"github.com/rexbrahh/ix-decoder/observability"
	natsx "github.com/rexbrahh/ix-decoder/sinks/nats"
)

// FailoverService feeds one Processor from a primary stream and, when
// configured, a fallback that takes over whenever the primary ends.
type FailoverService struct {
	primary   ClientInterface
	fallback  ClientInterface
	processor *Processor
	metrics   *failoverMetrics
	logger    *zap.Logger
	pipeline  *pipeline

	primaryRetryDelay  time.Duration
	fallbackRetryDelay time.Duration
}

// NewFailoverService constructs a failover service. When fallback is nil the
// service keeps retrying the primary.
func NewFailoverService(primary ClientInterface, fallback ClientInterface, reg *registry.Registry, natsCfg natsx.Config, metricsAddr string, logger *zap.Logger) (*FailoverService, error) {
	if primary == nil {
		return nil, errors.New("primary client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p, err := setupPipeline(reg, natsCfg, metricsAddr, logger)
	if err != nil {
		return nil, err
	}

	return &FailoverService{
		primary:            primary,
		fallback:           fallback,
		processor:          p.processor,
		metrics:            newFailoverMetrics(p.registry),
		logger:             logger,
		pipeline:           p,
		primaryRetryDelay:  5 * time.Second,
		fallbackRetryDelay: 3 * time.Second,
	}, nil
}

// Run alternates between the primary and fallback streams until ctx is
// cancelled. Every stream starts from startSlot; clients replay recent slots
// themselves.
func (s *FailoverService) Run(ctx context.Context, startSlot uint64) error {
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	s.pipeline.start(s.logger)
	defer s.pipeline.stop()

	client := s.primary
	for {
		s.metrics.activate(client.Name())

		began := time.Now()
		err := s.runClient(ctx, client, startSlot)
		if errors.Is(err, context.Canceled) {
			return ctx.Err()
		}
		if err != nil {
			s.metrics.failures.WithLabelValues(client.Name()).Inc()
			s.logger.Warn("stream ended",
				zap.String("source", client.Name()),
				zap.Duration("after", time.Since(began).Round(time.Millisecond)),
				zap.Error(err))
		}

		next, delay := s.next(client)
		if next != client {
			s.metrics.switches.Inc()
			s.logger.Info("switching ingest source", zap.String("from", client.Name()), zap.String("to", next.Name()))
		}
		client = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// next picks the client to try after current ended and how long to wait
// before dialing it.
func (s *FailoverService) next(current ClientInterface) (ClientInterface, time.Duration) {
	switch {
	case s.fallback == nil:
		return s.primary, s.primaryRetryDelay
	case current == s.primary:
		return s.fallback, s.fallbackRetryDelay
	default:
		return s.primary, s.primaryRetryDelay
	}
}

func (s *FailoverService) runClient(ctx context.Context, client ClientInterface, startSlot uint64) error {
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", client.Name(), err)
	}
	defer client.Close()
	return pump(ctx, s.processor, client, startSlot)
}

type failoverMetrics struct {
	active   *prometheus.GaugeVec
	switches prometheus.Counter
	failures *prometheus.CounterVec
	current  string
}

func newFailoverMetrics(reg prometheus.Registerer) *failoverMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &failoverMetrics{
		active: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: observability.Namespace,
			Subsystem: "ingestor",
			Name:      "active_source",
			Help:      "1 for the ingest source currently streaming, 0 otherwise.",
		}, []string{"source"}),
		switches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "ingestor",
			Name:      "source_switches_total",
			Help:      "Transitions between primary and fallback sources.",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "ingestor",
			Name:      "source_failures_total",
			Help:      "Stream failures per ingest source.",
		}, []string{"source"}),
	}
}

func (m *failoverMetrics) activate(source string) {
	if m.current != "" && m.current != source {
		m.active.WithLabelValues(m.current).Set(0)
	}
	m.active.WithLabelValues(source).Set(1)
	m.current = source
}
