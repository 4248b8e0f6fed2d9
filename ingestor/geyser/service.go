package geyser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rexbrahh/ix-decoder/decoder/registry"
	"github.com/rexbrahh/ix-decoder/ingestor/common"
	natsx "github.com/rexbrahh/ix-decoder/sinks/nats"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// ClientInterface captures the subset of the geyser client used by the service.
type ClientInterface interface {
	Connect() error
	Subscribe(startSlot uint64) (<-chan *pb.SubscribeUpdate, <-chan error)
	Close() error
	Name() string
}

// Service runs one geyser endpoint through the decode pipeline.
type Service struct {
	client    ClientInterface
	processor *Processor
	logger    *zap.Logger
	pipeline  *pipeline
}

// NewService dials nothing until Run. A non-empty metricsAddr serves the
// pipeline's Prometheus registry.
func NewService(geyserCfg *Config, reg *registry.Registry, natsCfg natsx.Config, metricsAddr string, logger *zap.Logger) (*Service, error) {
	if geyserCfg == nil {
		return nil, errors.New("geyser config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := NewClient(geyserCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init geyser client: %w", err)
	}

	p, err := setupPipeline(reg, natsCfg, metricsAddr, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		client:    client,
		processor: p.processor,
		logger:    logger,
		pipeline:  p,
	}, nil
}

// Run streams from a single endpoint until ctx is cancelled, the stream
// fails, or the client stops producing updates.
func (s *Service) Run(ctx context.Context, startSlot uint64) error {
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("connect geyser: %w", err)
	}
	defer s.client.Close()

	s.pipeline.start(s.logger)
	defer s.pipeline.stop()

	err := pump(ctx, s.processor, s.client, startSlot)
	switch {
	case errors.Is(err, errStreamClosed):
		return nil
	case errors.Is(err, context.Canceled):
		return ctx.Err()
	}
	return err
}

var errStreamClosed = errors.New("update stream closed")

// pump subscribes client and hands every update to proc. It returns
// context.Canceled on cancellation and errStreamClosed when the client
// closes its update channel.
func pump(ctx context.Context, proc *Processor, client ClientInterface, startSlot uint64) error {
	updates, errs := client.Subscribe(startSlot)
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		case update, ok := <-updates:
			if !ok {
				return errStreamClosed
			}
			if err := proc.HandleUpdate(ctx, update); err != nil {
				return err
			}
		}
	}
}

// pipeline holds the pieces shared by Service and FailoverService.
type pipeline struct {
	processor     *Processor
	publisher     *natsx.Publisher
	registry      *prometheus.Registry
	metricsServer *http.Server
	metricsStopCh chan struct{}
}

func (p *pipeline) start(logger *zap.Logger) {
	if p == nil || p.metricsServer == nil {
		return
	}
	go func() {
		defer close(p.metricsStopCh)
		if err := p.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

func (p *pipeline) stop() {
	if p == nil {
		return
	}
	if p.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.metricsServer.Shutdown(ctx)
		<-p.metricsStopCh
	}
	p.publisher.Close()
}

func buildMetricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	if addr == "" {
		return nil
	}
	return &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func setupPipeline(reg *registry.Registry, natsCfg natsx.Config, metricsAddr string, logger *zap.Logger) (*pipeline, error) {
	if reg == nil {
		return nil, errors.New("decoder registry is required")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promReg.MustRegister(collectors.NewGoCollector())

	publisher, err := natsx.NewPublisher(natsCfg, natsx.WithRegisterer(promReg))
	if err != nil {
		return nil, fmt.Errorf("init nats publisher: %w", err)
	}

	slotCache := common.NewMemorySlotTimeCache()
	processor := NewProcessor(publisher, reg, slotCache, promReg, logger)

	return &pipeline{
		processor:     processor,
		publisher:     publisher,
		registry:      promReg,
		metricsServer: buildMetricsServer(metricsAddr, promReg),
		metricsStopCh: make(chan struct{}),
	}, nil
}
