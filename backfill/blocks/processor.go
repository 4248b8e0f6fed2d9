// Package blocks backfills decoded instructions from JSON-RPC blocks.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rexbrahh/ix-decoder/backfill/orchestrator"
	dcommon "github.com/rexbrahh/ix-decoder/decoder/common"
	"github.com/rexbrahh/ix-decoder/decoder/registry"
	"github.com/rexbrahh/ix-decoder/ingestor/common"
	ixdecoder "github.com/rexbrahh/ix-decoder/ingestor/decoder"
	"github.com/rexbrahh/ix-decoder/observability"
)

// JSON-RPC error codes for slots that will never have a block.
const (
	codeSlotSkipped            = -32007
	codeLongTermStorageSkipped = -32009
)

var errSlotSkipped = errors.New("slot skipped")

// BlockFetcher is the subset of *rpc.Client the backfill needs.
type BlockFetcher interface {
	GetBlockWithOpts(ctx context.Context, slot uint64, opts *rpc.GetBlockOpts) (*rpc.GetBlockResult, error)
}

// Publisher receives decoded events and one block head per fetched slot.
type Publisher interface {
	PublishInstruction(ctx context.Context, ev *common.InstructionEvent) error
	PublishBlockHead(ctx context.Context, head *common.BlockHead) error
}

type Processor struct {
	cfg       Config
	client    BlockFetcher
	decoder   *ixdecoder.Decoder
	publisher Publisher
	logger    *zap.Logger
	metrics   *processorMetrics
}

func NewProcessor(cfg Config, client BlockFetcher, reg *registry.Registry, publisher Publisher, promReg prometheus.Registerer, logger *zap.Logger) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("block fetcher must not be nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		cfg:       cfg,
		client:    client,
		decoder:   ixdecoder.New(reg, nil),
		publisher: publisher,
		logger:    logger,
		metrics:   newProcessorMetrics(promReg),
	}, nil
}

// ProcessRange handles every slot of rng in order. It satisfies
// orchestrator.RangeProcessor.
func (p *Processor) ProcessRange(ctx context.Context, rng orchestrator.Range) error {
	for slot := rng.StartSlot; slot < rng.EndSlot; slot++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.ProcessSlot(ctx, slot); err != nil {
			return fmt.Errorf("slot %d: %w", slot, err)
		}
	}
	return nil
}

// ProcessSlot fetches one block, publishes every decoded instruction and then
// the block head. Skipped slots publish nothing.
func (p *Processor) ProcessSlot(ctx context.Context, slot uint64) error {
	block, err := p.fetch(ctx, slot)
	if errors.Is(err, errSlotSkipped) {
		p.metrics.slots.WithLabelValues("skipped").Inc()
		return nil
	}
	if err != nil {
		p.metrics.slots.WithLabelValues("failed").Inc()
		return err
	}

	var blockTime int64
	if block.BlockTime != nil {
		blockTime = int64(*block.BlockTime)
	}

	for i, twm := range block.Transactions {
		meta, instructions, err := convertTransaction(slot, i, twm)
		if err != nil {
			p.logger.Warn("skip undecodable transaction", zap.Uint64("slot", slot), zap.Int("tx_index", i), zap.Error(err))
			p.metrics.errors.WithLabelValues("unknown", dcommon.Reason(err)).Inc()
			continue
		}

		res := p.decoder.Decode(meta, instructions)
		for _, failure := range res.Failures {
			p.metrics.errors.WithLabelValues(failure.Program, dcommon.Reason(failure)).Inc()
			p.logger.Debug("decode failed",
				zap.Uint64("slot", slot),
				zap.String("signature", meta.Signature),
				zap.String("program", failure.Program),
				zap.Error(failure),
			)
		}
		for _, ev := range res.Events {
			if ev.BlockTime == 0 {
				ev.BlockTime = blockTime
			}
			if err := p.publisher.PublishInstruction(ctx, ev); err != nil {
				return fmt.Errorf("publish instruction: %w", err)
			}
			p.metrics.events.WithLabelValues(ev.Program, ev.Name).Inc()
		}
	}

	head := &common.BlockHead{Slot: slot, BlockTime: blockTime, Status: p.cfg.headStatus()}
	if err := p.publisher.PublishBlockHead(ctx, head); err != nil {
		return fmt.Errorf("publish block head: %w", err)
	}
	p.metrics.slots.WithLabelValues("processed").Inc()
	return nil
}

func (p *Processor) fetch(ctx context.Context, slot uint64) (*rpc.GetBlockResult, error) {
	maxVersion := uint64(0)
	rewards := false
	opts := &rpc.GetBlockOpts{
		Encoding:                       solana.EncodingBase64,
		TransactionDetails:             rpc.TransactionDetailsFull,
		Rewards:                        &rewards,
		Commitment:                     p.cfg.Commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	backoff := p.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Debug("retrying block fetch", zap.Uint64("slot", slot), zap.Int("attempt", attempt), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		block, err := p.client.GetBlockWithOpts(ctx, slot, opts)
		if err == nil && block != nil {
			return block, nil
		}
		if isSkipped(err) {
			return nil, errSlotSkipped
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("get block after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// isSkipped reports errors meaning the slot never produced a block. A nil
// result with no error is treated the same way.
func isSkipped(err error) bool {
	if err == nil || errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == codeSlotSkipped || rpcErr.Code == codeLongTermStorageSkipped
	}
	return false
}

type processorMetrics struct {
	slots  *prometheus.CounterVec
	events *prometheus.CounterVec
	errors *prometheus.CounterVec
}

func newProcessorMetrics(reg prometheus.Registerer) *processorMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &processorMetrics{
		slots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Name:      observability.MetricBackfillSlots,
			Help:      "Slots visited by the backfill, by outcome.",
		}, []string{"status"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Name:      observability.MetricBackfillEvents,
			Help:      "Decoded instructions published by the backfill.",
		}, []string{"program", "instruction"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "backfill",
			Name:      "decode_errors_total",
			Help:      "Instructions the backfill could not decode.",
		}, []string{"program", "reason"}),
	}
}
