package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/trades-allocator/internal/cache"
	"github.com/example/trades-allocator/internal/config"
	"github.com/example/trades-allocator/internal/holdings"
	httpserver "github.com/example/trades-allocator/internal/http"
	kafkaio "github.com/example/trades-allocator/internal/kafka"
	"github.com/example/trades-allocator/internal/logging"
	"github.com/example/trades-allocator/internal/metrics"
	"github.com/example/trades-allocator/internal/reporter"
	"github.com/example/trades-allocator/internal/simulate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, "allocator")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	svc := holdings.New(holdings.Options{
		Workers:       cfg.AllocationWorkers,
		QueueCapacity: cfg.AllocationQueueCapacity,
		NonBlocking:   cfg.AllocationNonBlocking,
		ErrorBuffer:   cfg.ErrorBuffer,
	}, logger.Named("holdings"), m)

	positionsCache, err := cache.New(1<<26 /* ~64MB */, cfg.CacheTTL)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	defer positionsCache.Close()

	g, ctx := errgroup.WithContext(ctx)

	// drain allocation errors; they are already logged by the service
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err, ok := <-svc.Errors():
				if !ok {
					return nil
				}
				logger.Debug("allocation error observed", zap.Error(err))
			}
		}
	})

	var positionsPublisher reporter.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		fills := kafkaio.NewFillConsumer(
			kafkaio.NewReader(cfg.KafkaBrokers, cfg.KafkaFillsTopic, cfg.ConsumerGroup("fills")),
			svc, logger.Named("kafka.fills"))
		splits := kafkaio.NewSplitConsumer(
			kafkaio.NewReader(cfg.KafkaBrokers, cfg.KafkaSplitsTopic, cfg.ConsumerGroup("splits")),
			svc, logger.Named("kafka.splits"))
		g.Go(func() error { return fills.Run(ctx) })
		g.Go(func() error { return splits.Run(ctx) })

		if cfg.KafkaPositionsTopic != "" {
			pub := &kafkaio.Publisher{W: kafkaio.NewWriter(cfg.KafkaBrokers, cfg.KafkaPositionsTopic)}
			defer pub.Close()
			positionsPublisher = pub
		}
		logger.Info("kafka consumers started",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("fills_topic", cfg.KafkaFillsTopic),
			zap.String("splits_topic", cfg.KafkaSplitsTopic),
		)
	}

	rep := reporter.New(svc, positionsPublisher, cfg.ReportInterval, logger.Named("reporter"), m)
	g.Go(func() error { return rep.Run(ctx) })

	if cfg.Simulate {
		startSimulators(ctx, g, cfg, svc, logger.Named("simulate"))
	}

	s := httpserver.NewServer(svc, positionsCache, registry, logger, cfg.CORSOrigin)
	server := &http.Server{Addr: ":" + cfg.Port, Handler: s.R}
	g.Go(func() error {
		logger.Info("http listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// graceful shutdown
	g.Go(func() error {
		<-ctx.Done()
		ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShut()
		return server.Shutdown(ctxShut)
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	svc.Stop()
	logger.Info("shutdown complete")
}

func startSimulators(ctx context.Context, g *errgroup.Group, cfg config.Config, svc *holdings.Service, logger *zap.Logger) {
	seed := time.Now().UnixNano()
	splitGen := simulate.NewSplitGenerator(cfg.SimAccounts, seed)
	g.Go(func() error {
		simulate.RunSplits(ctx, splitGen, cfg.SimSplitInterval, simulate.SplitSinkFunc(func(t map[string]float64) error {
			svc.PublishSplits(t)
			return nil
		}), logger)
		return nil
	})

	fillGen := simulate.NewFillGenerator(seed + 1)
	for i := 0; i < cfg.SimFillProducers; i++ {
		g.Go(func() error {
			simulate.RunFills(ctx, fillGen, cfg.SimFillInterval, cfg.SimFillJitter, svc, logger)
			return nil
		})
	}
	logger.Info("simulators started",
		zap.Int("fill_producers", cfg.SimFillProducers),
		zap.Int("accounts", cfg.SimAccounts),
	)
}
