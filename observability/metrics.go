package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rexbrahh/ix-decoder/decoder/common"
)

const (
	Namespace = "dex"

	MetricIngestorSlotLag        = "ingestor_slot_lag"
	MetricPublisherNATSacksTotal = "publisher_nats_acks_total"
	MetricPublisherNATSErrors    = "publisher_nats_errors_total"

	MetricDecodeTotal       = "decoder_instructions_total"
	MetricDecodeErrors      = "decoder_errors_total"
	MetricDecodeDuration    = "decoder_duration_seconds"
	MetricCacheHits         = "decoder_cache_hits_total"
	MetricIngestorDecoded   = "ingestor_decoded_instructions_total"
	MetricIngestorSkipped   = "ingestor_skipped_instructions_total"
	MetricIngestorDecodeErr = "ingestor_decode_errors_total"

	MetricBackfillRanges   = "backfill_ranges_total"
	MetricBackfillDuration = "backfill_range_duration_seconds"
	MetricBackfillSlots    = "backfill_slots_total"
	MetricBackfillEvents   = "backfill_events_total"
)

// DecodeMetrics tracks decode outcomes by program and error reason.
type DecodeMetrics struct {
	decoded   *prometheus.CounterVec
	errors    *prometheus.CounterVec
	duration  prometheus.Histogram
	cacheHits prometheus.Counter
}

// NewDecodeMetrics registers the decode collectors on reg. A nil reg gets a
// private registry so callers in tests never collide.
func NewDecodeMetrics(reg prometheus.Registerer) *DecodeMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &DecodeMetrics{
		decoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricDecodeTotal,
			Help:      "Instructions decoded successfully, by program and instruction name.",
		}, []string{"program", "instruction"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricDecodeErrors,
			Help:      "Decode failures by program and reason.",
		}, []string{"program", "reason"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      MetricDecodeDuration,
			Help:      "Time spent decoding and rendering one instruction.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricCacheHits,
			Help:      "Decode requests served from cache.",
		}),
	}
}

// ObserveDecoded records a successful decode.
func (m *DecodeMetrics) ObserveDecoded(program, instruction string, seconds float64) {
	if m == nil {
		return
	}
	m.decoded.WithLabelValues(program, instruction).Inc()
	m.duration.Observe(seconds)
}

// ObserveError records a failed decode classified by common.Reason.
func (m *DecodeMetrics) ObserveError(program string, err error) {
	if m == nil {
		return
	}
	if program == "" {
		program = "unknown"
	}
	m.errors.WithLabelValues(program, common.Reason(err)).Inc()
}

// ObserveCacheHit records a decode served from cache.
func (m *DecodeMetrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}
