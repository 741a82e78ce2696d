package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/trades-allocator/internal/config"
	kafkaio "github.com/example/trades-allocator/internal/kafka"
	"github.com/example/trades-allocator/internal/logging"
	"github.com/example/trades-allocator/internal/models"
	"github.com/example/trades-allocator/internal/simulate"
)

func main() {
	cfg, err := config.LoadProducer()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if len(cfg.Brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is empty")
	}
	logger, err := logging.New(cfg.LogLevel, "producer")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Base context canceled by SIGINT/SIGTERM
	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Apply TTL unless stay-alive requested or TTL <= 0
	ctx := baseCtx
	if !cfg.StayAlive && cfg.TTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(baseCtx, cfg.TTL)
		defer cancel()
	}

	// Best-effort ensure topics exist (short timeout)
	if cfg.EnsureTopic {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		kafkaio.EnsureTopic(c, cfg.Brokers[0], cfg.FillsTopic, logger)
		kafkaio.EnsureTopic(c, cfg.Brokers[0], cfg.SplitsTopic, logger)
		cancel()
	}

	fills := &kafkaio.Publisher{W: kafkaio.NewWriter(cfg.Brokers, cfg.FillsTopic)}
	splits := &kafkaio.Publisher{W: kafkaio.NewWriter(cfg.Brokers, cfg.SplitsTopic)}
	defer func() {
		for _, p := range []*kafkaio.Publisher{fills, splits} {
			if err := p.Close(); err != nil {
				logger.Warn("writer close", zap.Error(err))
			}
		}
	}()

	logger.Info("producer started",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("fills_topic", cfg.FillsTopic),
		zap.String("splits_topic", cfg.SplitsTopic),
		zap.Int("rate", cfg.FillsPerSec),
		zap.Bool("stay_alive", cfg.StayAlive),
		zap.Duration("ttl", cfg.TTL),
	)

	seed := time.Now().UnixNano()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		simulate.RunSplits(ctx, simulate.NewSplitGenerator(cfg.Accounts, seed), cfg.SplitInterval,
			simulate.SplitSinkFunc(func(t map[string]float64) error {
				return splits.PublishSplits(ctx, models.SplitUpdate{Splits: t, TS: time.Now().UTC()})
			}), logger)
	}()
	go func() {
		defer wg.Done()
		period := time.Second / time.Duration(cfg.FillsPerSec)
		simulate.RunFills(ctx, simulate.NewFillGenerator(seed+1), period, period/2,
			simulate.FillSinkFunc(func(f models.Fill) error { return fills.PublishFill(ctx, f) }), logger)
	}()
	wg.Wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Info("producer: TTL reached; exiting")
	} else {
		logger.Info("producer: shutting down (signal)")
	}
}
