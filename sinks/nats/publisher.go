package natsx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	nats "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rexbrahh/ix-decoder/ingestor/common"
	"github.com/rexbrahh/ix-decoder/observability"
)

const blockHeadSuffix = "blocks.head"

// Publisher emits decoded instruction events and block heads to JetStream.
type Publisher struct {
	cfg     Config
	conn    *nats.Conn
	js      nats.JetStreamContext
	metrics *publisherMetrics
}

// Option customises a Publisher.
type Option func(*Publisher)

// WithRegisterer records ack and error counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Publisher) {
		p.metrics = newPublisherMetrics(reg)
	}
}

// NewPublisher validates configuration and connects to JetStream.
func NewPublisher(cfg Config, opts ...Option) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("ix-decoder-publisher"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if cfg.EnsureStream {
		if err := ensureStream(js, cfg); err != nil {
			conn.Close()
			return nil, err
		}
	}

	p := &Publisher{cfg: cfg, conn: conn, js: js}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func ensureStream(js nats.JetStreamContext, cfg Config) error {
	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", cfg.Stream, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{strings.TrimSuffix(cfg.SubjectRoot, ".") + ".>"},
		Storage:    nats.FileStorage,
		Duplicates: cfg.DedupWindow,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", cfg.Stream, err)
	}
	return nil
}

// PublishInstruction publishes ev on <root>.<program>.<instruction>.
func (p *Publisher) PublishInstruction(ctx context.Context, ev *common.InstructionEvent) error {
	if ev == nil {
		return nil
	}
	return p.publish(ctx, ev.Subject(p.cfg.SubjectRoot), ev.MsgID(), ev)
}

// PublishBlockHead publishes head on <root>.blocks.head.
func (p *Publisher) PublishBlockHead(ctx context.Context, head *common.BlockHead) error {
	if head == nil {
		return nil
	}
	return p.publish(ctx, BlockHeadSubject(p.cfg.SubjectRoot), head.MsgID(), head)
}

func (p *Publisher) publish(ctx context.Context, subject, msgID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}

	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	msg.Header.Set(nats.MsgIdHdr, msgID)

	pubCtx, cancel := p.WithTimeout(ctx)
	defer cancel()

	if _, err := p.js.PublishMsg(msg, nats.Context(pubCtx), nats.ExpectStream(p.cfg.Stream)); err != nil {
		p.metrics.recordError()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.metrics.recordAck()
	return nil
}

// WithTimeout returns a context with the publisher's timeout applied.
func (p *Publisher) WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := p.cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().PublishTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// Config exposes a copy of the publisher configuration.
func (p *Publisher) Config() Config {
	return p.cfg
}

// Close flushes pending publishes and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}

// BlockHeadSubject is the subject block heads are published on.
func BlockHeadSubject(root string) string {
	return strings.TrimSuffix(root, ".") + "." + blockHeadSuffix
}

// Message is a parsed bus message; exactly one field is set.
type Message struct {
	Event *common.InstructionEvent
	Head  *common.BlockHead
}

// ParseMessage decodes a message consumed from the stream by its subject.
func ParseMessage(msg *nats.Msg) (Message, error) {
	if strings.HasSuffix(msg.Subject, "."+blockHeadSuffix) {
		var head common.BlockHead
		if err := json.Unmarshal(msg.Data, &head); err != nil {
			return Message{}, fmt.Errorf("unmarshal block head: %w", err)
		}
		return Message{Head: &head}, nil
	}

	var ev common.InstructionEvent
	dec := json.NewDecoder(bytes.NewReader(msg.Data))
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return Message{}, fmt.Errorf("unmarshal instruction event: %w", err)
	}
	return Message{Event: &ev}, nil
}

type publisherMetrics struct {
	acks   prometheus.Counter
	errors prometheus.Counter
}

func newPublisherMetrics(reg prometheus.Registerer) *publisherMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &publisherMetrics{
		acks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Name:      observability.MetricPublisherNATSacksTotal,
			Help:      "JetStream publish acknowledgements.",
		}),
		errors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Name:      observability.MetricPublisherNATSErrors,
			Help:      "JetStream publish failures.",
		}),
	}
}

func (m *publisherMetrics) recordAck() {
	if m == nil {
		return
	}
	m.acks.Inc()
}

func (m *publisherMetrics) recordError() {
	if m == nil {
		return
	}
	m.errors.Inc()
}
