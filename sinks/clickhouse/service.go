package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/rexbrahh/ix-decoder/ingestor/common"
	natsx "github.com/rexbrahh/ix-decoder/sinks/nats"
)

type rowWriter interface {
	WriteInstructions(ctx context.Context, rows []Row) error
	WriteBlocks(ctx context.Context, rows []BlockRow) error
	Flush(ctx context.Context) error
}

type sinkWriter interface {
	rowWriter
	Pending() int
	Close(ctx context.Context) error
}

// processor turns bus messages into rows. Events without a block time are
// stamped from block heads seen earlier on the stream.
type processor struct {
	writer    rowWriter
	slotTimes map[uint64]time.Time
}

func newProcessor(writer rowWriter) *processor {
	return &processor{
		writer:    writer,
		slotTimes: make(map[uint64]time.Time),
	}
}

func (p *processor) handleBlockHead(ctx context.Context, head *common.BlockHead) error {
	if head == nil {
		return nil
	}
	var ts time.Time
	if head.BlockTime > 0 {
		ts = time.Unix(head.BlockTime, 0).UTC()
		p.slotTimes[head.Slot] = ts
	} else {
		ts = p.slotTimes[head.Slot]
	}
	if head.Status == common.StatusDead || head.Status == common.StatusFinalized {
		delete(p.slotTimes, head.Slot)
	}
	return p.writer.WriteBlocks(ctx, []BlockRow{{Slot: head.Slot, Timestamp: ts, Status: head.Status}})
}

func (p *processor) handleInstruction(ctx context.Context, ev *common.InstructionEvent) error {
	if ev == nil {
		return nil
	}
	row, err := p.toRow(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteInstructions(ctx, []Row{row})
}

func (p *processor) toRow(ev *common.InstructionEvent) (Row, error) {
	data, err := encodeJSON(ev.Data)
	if err != nil {
		return Row{}, fmt.Errorf("encode data: %w", err)
	}
	accounts, err := encodeJSON(ev.Accounts)
	if err != nil {
		return Row{}, fmt.Errorf("encode accounts: %w", err)
	}

	ts := p.slotTimes[ev.Slot]
	if ev.BlockTime > 0 {
		ts = time.Unix(ev.BlockTime, 0).UTC()
	}

	return Row{
		Slot:        ev.Slot,
		Timestamp:   ts,
		Signature:   ev.Signature,
		TxIndex:     ev.TxIndex,
		Index:       ev.Index,
		InnerIndex:  ev.InnerIndex,
		StackHeight: ev.StackHeight,
		ProgramID:   ev.ProgramID,
		Program:     ev.Program,
		Name:        ev.Name,
		Data:        data,
		Accounts:    accounts,
		Failed:      ev.Failed,
		IsUndo:      ev.Undo,
	}, nil
}

func (p *processor) handle(ctx context.Context, parsed natsx.Message) error {
	if parsed.Head != nil {
		return p.handleBlockHead(ctx, parsed.Head)
	}
	return p.handleInstruction(ctx, parsed.Event)
}

// Service consumes decoded instructions from JetStream into ClickHouse.
type Service struct {
	cfg       ServiceConfig
	conn      *nats.Conn
	sub       *nats.Subscription
	writer    sinkWriter
	processor *processor
	logger    *zap.Logger
}

// NewService connects to ClickHouse and binds a pull consumer on the stream.
func NewService(ctx context.Context, cfg ServiceConfig, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	writer, err := NewWithConfig(ctx, cfg.Writer)
	if err != nil {
		return nil, err
	}

	svc, err := newService(cfg, writer, logger)
	if err != nil {
		_ = writer.client.Close()
		return nil, err
	}
	return svc, nil
}

func newService(cfg ServiceConfig, writer sinkWriter, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("ix-decoder-clickhouse-sink"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	subject := cfg.SubjectRoot + ".>"
	sub, err := js.PullSubscribe(subject, cfg.Consumer, nats.BindStream(cfg.Stream), nats.ManualAck())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("pull subscribe: %w", err)
	}

	return &Service{
		cfg:       cfg,
		conn:      conn,
		sub:       sub,
		writer:    writer,
		processor: newProcessor(writer),
		logger:    logger,
	}, nil
}

// Run fetches and writes until ctx is cancelled. Messages are acked only
// after the batch holding them has been flushed.
func (s *Service) Run(ctx context.Context) error {
	flushTicker := time.NewTicker(s.cfg.Writer.FlushInterval)
	defer flushTicker.Stop()
	defer s.conn.Drain() //nolint:errcheck
	defer func() {
		if err := s.writer.Close(context.Background()); err != nil {
			s.logger.Error("final flush failed", zap.Error(err))
		}
	}()

	var unacked []*nats.Msg
	flush := func(ctx context.Context) error {
		if err := s.writer.Flush(ctx); err != nil {
			for _, msg := range unacked {
				_ = msg.Nak()
			}
			unacked = unacked[:0]
			return err
		}
		for _, msg := range unacked {
			_ = msg.Ack()
		}
		unacked = unacked[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			if err := flush(context.Background()); err != nil {
				s.logger.Error("flush on shutdown failed", zap.Error(err))
			}
			return ctx.Err()
		case <-flushTicker.C:
			if err := flush(ctx); err != nil {
				return err
			}
		default:
		}

		msgs, err := s.sub.Fetch(s.cfg.PullBatch, nats.MaxWait(s.cfg.PullTimeout))
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		if err != nil {
			return fmt.Errorf("fetch messages: %w", err)
		}

		for _, msg := range msgs {
			parsed, err := natsx.ParseMessage(msg)
			if err != nil {
				// Poison messages are terminated so the consumer can move on.
				s.logger.Warn("drop undecodable message", zap.String("subject", msg.Subject), zap.Error(err))
				_ = msg.Term()
				continue
			}
			unacked = append(unacked, msg)
			if err := s.processor.handle(ctx, parsed); err != nil {
				for _, m := range unacked {
					_ = m.Nak()
				}
				return err
			}
		}
		if s.writer.Pending() == 0 {
			if err := flush(ctx); err != nil {
				return err
			}
		}
	}
}
