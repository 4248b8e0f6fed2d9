package geyser

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	dcommon "github.com/rexbrahh/ix-decoder/decoder/common"
	"github.com/rexbrahh/ix-decoder/decoder/registry"
	"github.com/rexbrahh/ix-decoder/ingestor/common"
	ixdecoder "github.com/rexbrahh/ix-decoder/ingestor/decoder"
	"github.com/rexbrahh/ix-decoder/observability"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// EventPublisher publishes decoded instructions and block heads.
type EventPublisher interface {
	PublishInstruction(ctx context.Context, ev *common.InstructionEvent) error
	PublishBlockHead(ctx context.Context, head *common.BlockHead) error
}

// Processor consumes geyser updates and emits decoded instruction events.
// Events stay pending until their slot is finalized; a dead slot retracts
// them with undo events. Slots that fall more than retention behind the
// newest slot seen are forgotten even if no final status ever arrives.
type Processor struct {
	publisher  EventPublisher
	decoder    *ixdecoder.Decoder
	logger     *zap.Logger
	metrics    *processorMetrics
	pending    map[uint64][]*common.InstructionEvent
	blockHeads map[uint64]*common.BlockHead
	retention  uint64
	newest     uint64
}

// NewProcessor initialises a Processor with optional metrics registration.
func NewProcessor(publisher EventPublisher, reg *registry.Registry, cache common.SlotTimeCache, promReg prometheus.Registerer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		publisher:  publisher,
		decoder:    ixdecoder.New(reg, cache),
		logger:     logger,
		metrics:    newProcessorMetrics(promReg),
		pending:    make(map[uint64][]*common.InstructionEvent),
		blockHeads: make(map[uint64]*common.BlockHead),
		retention:  common.DefaultSlotRetention,
	}
}

// HandleUpdate inspects an incoming geyser update and routes it to the decoder.
func (p *Processor) HandleUpdate(ctx context.Context, update *pb.SubscribeUpdate) error {
	if update == nil {
		return nil
	}

	switch u := update.GetUpdateOneof().(type) {
	case *pb.SubscribeUpdate_Transaction:
		return p.handleTransaction(ctx, u.Transaction)
	case *pb.SubscribeUpdate_BlockMeta:
		return p.handleBlockMeta(ctx, u.BlockMeta)
	case *pb.SubscribeUpdate_Slot:
		return p.handleSlot(ctx, u.Slot)
	}
	return nil
}

func (p *Processor) handleTransaction(ctx context.Context, tx *pb.SubscribeUpdateTransaction) error {
	if tx == nil {
		return nil
	}

	res, err := p.decoder.DecodeTransaction(tx)
	if err != nil {
		// A malformed update affects only itself; keep the stream going.
		p.logger.Warn("skip malformed transaction update", zap.Uint64("slot", tx.GetSlot()), zap.Error(err))
		p.metrics.recordFailure("unknown", err)
		return nil
	}

	for _, failure := range res.Failures {
		p.metrics.recordFailure(failure.Program, failure)
		p.logger.Debug("instruction decode failed",
			zap.Uint64("slot", tx.GetSlot()),
			zap.String("program", failure.Program),
			zap.String("reason", dcommon.Reason(failure)),
			zap.Error(failure.Err))
	}
	p.metrics.skipped.Add(float64(res.Skipped))

	for _, ev := range res.Events {
		if err := p.publisher.PublishInstruction(ctx, ev); err != nil {
			return fmt.Errorf("publish instruction: %w", err)
		}
		p.metrics.decoded.WithLabelValues(ev.Program, ev.Name).Inc()
		p.appendPending(ev)
	}
	return nil
}

func (p *Processor) handleBlockMeta(ctx context.Context, meta *pb.SubscribeUpdateBlockMeta) error {
	p.decoder.HandleBlockMeta(meta)
	if meta == nil {
		return nil
	}

	head := &common.BlockHead{
		Slot:   meta.GetSlot(),
		Status: common.StatusConfirmed,
	}
	if ts := meta.GetBlockTime(); ts != nil {
		head.BlockTime = ts.GetTimestamp()
		p.metrics.slotLag.Set(time.Since(time.Unix(head.BlockTime, 0)).Seconds())
	}
	if p.observe(head.Slot) {
		p.blockHeads[head.Slot] = head
	}
	clone := *head
	return p.publisher.PublishBlockHead(ctx, &clone)
}

func (p *Processor) handleSlot(ctx context.Context, update *pb.SubscribeUpdateSlot) error {
	if update == nil {
		return nil
	}
	slot := update.GetSlot()
	p.observe(slot)
	switch update.GetStatus() {
	case pb.SlotStatus_SLOT_FINALIZED:
		delete(p.pending, slot)
		return p.publishBlockHeadStatus(ctx, slot, common.StatusFinalized)
	case pb.SlotStatus_SLOT_DEAD:
		if err := p.undoSlot(ctx, slot); err != nil {
			return err
		}
		return p.publishBlockHeadStatus(ctx, slot, common.StatusDead)
	default:
		return nil
	}
}

func (p *Processor) undoSlot(ctx context.Context, slot uint64) error {
	events := p.pending[slot]
	for _, ev := range events {
		undo := *ev
		undo.Undo = true
		if err := p.publisher.PublishInstruction(ctx, &undo); err != nil {
			return fmt.Errorf("publish undo instruction: %w", err)
		}
	}
	if len(events) > 0 {
		p.logger.Info("retracted events for dead slot", zap.Uint64("slot", slot), zap.Int("events", len(events)))
	}
	delete(p.pending, slot)
	return nil
}

func (p *Processor) publishBlockHeadStatus(ctx context.Context, slot uint64, status string) error {
	head, ok := p.blockHeads[slot]
	if !ok {
		return nil
	}
	updated := *head
	updated.Status = status
	if err := p.publisher.PublishBlockHead(ctx, &updated); err != nil {
		return fmt.Errorf("publish block head %s: %w", status, err)
	}
	delete(p.blockHeads, slot)
	return nil
}

// observe advances the newest slot, drops tracked slots that fell out of the
// retention window, and reports whether slot itself is still inside it.
func (p *Processor) observe(slot uint64) bool {
	if slot > p.newest {
		p.newest = slot
		if cutoff, ok := p.cutoff(); ok {
			dropped := 0
			for s := range p.pending {
				if s < cutoff {
					delete(p.pending, s)
					dropped++
				}
			}
			for s := range p.blockHeads {
				if s < cutoff {
					delete(p.blockHeads, s)
					dropped++
				}
			}
			if dropped > 0 {
				p.logger.Debug("dropped unsettled slots", zap.Uint64("before", cutoff), zap.Int("entries", dropped))
			}
		}
	}
	cutoff, ok := p.cutoff()
	return !ok || slot >= cutoff
}

func (p *Processor) cutoff() (uint64, bool) {
	if p.retention == 0 || p.newest <= p.retention {
		return 0, false
	}
	return p.newest - p.retention, true
}

func (p *Processor) appendPending(ev *common.InstructionEvent) {
	if !p.observe(ev.Slot) {
		return
	}
	clone := *ev
	p.pending[ev.Slot] = append(p.pending[ev.Slot], &clone)
}

type processorMetrics struct {
	decoded *prometheus.CounterVec
	errors  *prometheus.CounterVec
	skipped prometheus.Counter
	// slotLag is how far behind wall time the newest block meta was.
	slotLag prometheus.Gauge
}

func newProcessorMetrics(reg prometheus.Registerer) *processorMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &processorMetrics{
		decoded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "geyser",
			Name:      observability.MetricIngestorDecoded,
			Help:      "Instructions decoded from geyser transactions.",
		}, []string{"program", "instruction"}),
		errors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "geyser",
			Name:      observability.MetricIngestorDecodeErr,
			Help:      "Instruction decode failures by program and reason.",
		}, []string{"program", "reason"}),
		skipped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "geyser",
			Name:      observability.MetricIngestorSkipped,
			Help:      "Instructions of registered programs without a rendered form.",
		}),
		slotLag: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: observability.Namespace,
			Subsystem: "geyser",
			Name:      observability.MetricIngestorSlotLag,
			Help:      "Seconds between the latest block time and its arrival.",
		}),
	}
}

func (m *processorMetrics) recordFailure(program string, err error) {
	m.errors.WithLabelValues(program, dcommon.Reason(err)).Inc()
}
