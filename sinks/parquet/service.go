package parquet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	natsx "github.com/rexbrahh/ix-decoder/sinks/nats"
)

// Service archives decoded instructions from JetStream. Block heads are
// acknowledged and skipped.
type Service struct {
	cfg       ServiceConfig
	conn      *nats.Conn
	sub       *nats.Subscription
	writer    *Writer
	flushTick *time.Ticker
	logger    *zap.Logger
}

func NewService(ctx context.Context, cfg ServiceConfig, logger *zap.Logger) (*Service, error) {
	writer, err := NewWriter(cfg.Writer)
	if err != nil {
		return nil, err
	}
	return newService(cfg, writer, logger)
}

func newService(cfg ServiceConfig, writer *Writer, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("ix-decoder-parquet-sink"))
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
		flushTick: time.NewTicker(cfg.Writer.FlushInterval),
		logger:    logger,
	}, nil
}

// Run fetches and archives until ctx is cancelled. Messages are acked once
// the rows they produced have been uploaded.
func (s *Service) Run(ctx context.Context) error {
	defer s.flushTick.Stop()
	defer s.conn.Drain() //nolint:errcheck

	var unacked []*nats.Msg
	settle := func(err error) error {
		for _, msg := range unacked {
			if err != nil {
				_ = msg.Nak()
			} else {
				_ = msg.Ack()
			}
		}
		unacked = unacked[:0]
		return err
	}

	for {
		select {
		case <-ctx.Done():
			if err := settle(s.writer.Close()); err != nil {
				s.logger.Error("final flush failed", zap.Error(err))
			}
			return ctx.Err()
		case <-s.flushTick.C:
			if err := settle(s.writer.Flush(ctx)); err != nil {
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
				s.logger.Warn("drop undecodable message", zap.String("subject", msg.Subject), zap.Error(err))
				_ = msg.Term()
				continue
			}
			if parsed.Event == nil {
				_ = msg.Ack()
				continue
			}
			unacked = append(unacked, msg)
			if err := s.writer.AppendInstruction(ctx, parsed.Event); err != nil {
				return settle(err)
			}
		}
		if s.writer.Pending() == 0 {
			_ = settle(nil)
		}
	}
}
