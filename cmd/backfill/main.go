package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rexbrahh/ix-decoder/backfill/blocks"
	"github.com/rexbrahh/ix-decoder/backfill/orchestrator"
	"github.com/rexbrahh/ix-decoder/decoder/registry"
	natsx "github.com/rexbrahh/ix-decoder/sinks/nats"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.Named("backfill")

	regCfg, err := registry.FromEnv()
	if err != nil {
		logger.Fatal("load decoder programs", zap.Error(err))
	}
	reg, err := regCfg.Build()
	if err != nil {
		logger.Fatal("build decoder registry", zap.Error(err))
	}

	orchCfg, err := orchestrator.FromEnv()
	if err != nil {
		logger.Fatal("load backfill config", zap.Error(err))
	}
	blockCfg, err := blocks.FromEnv()
	if err != nil {
		logger.Fatal("load rpc config", zap.Error(err))
	}
	natsCfg, err := natsx.FromEnv()
	if err != nil {
		logger.Fatal("load nats config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := rpc.New(blockCfg.RPCURL)

	if orchCfg.EndSlot == 0 {
		tip, err := client.GetSlot(ctx, blockCfg.Commitment)
		if err != nil {
			logger.Fatal("resolve end slot", zap.Error(err))
		}
		orchCfg.EndSlot = tip + 1
		if err := orchCfg.Validate(); err != nil {
			logger.Fatal("invalid slot range", zap.Error(err))
		}
	}

	promReg := prometheus.NewRegistry()
	publisher, err := natsx.NewPublisher(natsCfg, natsx.WithRegisterer(promReg))
	if err != nil {
		logger.Fatal("connect nats", zap.Error(err))
	}
	defer publisher.Close()

	processor, err := blocks.NewProcessor(blockCfg, client, reg, publisher, promReg, logger)
	if err != nil {
		logger.Fatal("init block processor", zap.Error(err))
	}

	orch, err := orchestrator.New(orchCfg, processor.ProcessRange,
		orchestrator.WithLogger(logger),
		orchestrator.WithRegisterer(promReg),
	)
	if err != nil {
		logger.Fatal("init orchestrator", zap.Error(err))
	}

	if addr := os.Getenv("BACKFILL_METRICS_ADDR"); addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close() //nolint:errcheck
	}

	logger.Info("starting backfill",
		zap.String("rpc", blockCfg.RPCURL),
		zap.Uint64("start_slot", orchCfg.StartSlot),
		zap.Uint64("end_slot", orchCfg.EndSlot),
		zap.Uint64("batch_size", orchCfg.BatchSize),
		zap.Int("concurrency", orchCfg.Concurrency),
	)

	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("backfill failed", zap.Error(err))
	}
	logger.Info("backfill stopped")
}
