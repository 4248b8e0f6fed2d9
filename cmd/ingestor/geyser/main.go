package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/rexbrahh/ix-decoder/decoder/registry"
	"github.com/rexbrahh/ix-decoder/ingestor/geyser"
	natsx "github.com/rexbrahh/ix-decoder/sinks/nats"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.Named("ingestor-geyser")

	regCfg, err := registry.FromEnv()
	if err != nil {
		logger.Fatal("load decoder programs", zap.Error(err))
	}
	reg, err := regCfg.Build()
	if err != nil {
		logger.Fatal("build decoder registry", zap.Error(err))
	}

	geyserCfg, err := geyser.LoadConfig(reg.Filters())
	if err != nil {
		logger.Fatal("load geyser config", zap.Error(err))
	}
	fallbackCfg, err := geyser.LoadFallbackConfig(geyserCfg)
	if err != nil {
		logger.Fatal("load fallback config", zap.Error(err))
	}

	natsCfg, err := natsx.FromEnv()
	if err != nil {
		logger.Fatal("load nats config", zap.Error(err))
	}

	metricsAddr := os.Getenv("INGESTOR_METRICS_ADDR")

	var startSlot uint64
	if v := os.Getenv("INGESTOR_START_SLOT"); v != "" {
		startSlot, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			logger.Fatal("invalid INGESTOR_START_SLOT", zap.String("value", v), zap.Error(err))
		}
	}

	var service interface {
		Run(ctx context.Context, startSlot uint64) error
	}

	if fallbackCfg != nil {
		logger.Info("geyser fallback enabled", zap.Stringer("fallback", fallbackCfg))
		primaryClient, err := geyser.NewClient(geyserCfg, logger)
		if err != nil {
			logger.Fatal("init geyser client", zap.Error(err))
		}
		fallbackClient, err := geyser.NewClient(fallbackCfg, logger)
		if err != nil {
			logger.Fatal("init fallback client", zap.Error(err))
		}

		service, err = geyser.NewFailoverService(primaryClient, fallbackClient, reg, natsCfg, metricsAddr, logger)
		if err != nil {
			logger.Fatal("init failover service", zap.Error(err))
		}
	} else {
		svc, err := geyser.NewService(geyserCfg, reg, natsCfg, metricsAddr, logger)
		if err != nil {
			logger.Fatal("init service", zap.Error(err))
		}
		service = svc
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	logger.Info("starting ingestor",
		zap.Stringer("geyser", geyserCfg),
		zap.Strings("programs", programNames(reg)),
		zap.Uint64("start_slot", startSlot))

	if err := service.Run(ctx, startSlot); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("service run failed", zap.Error(err))
	}

	logger.Info("service stopped")
}

func programNames(reg *registry.Registry) []string {
	programs := reg.Programs()
	names := make([]string, 0, len(programs))
	for _, p := range programs {
		names = append(names, p.String())
	}
	return names
}
