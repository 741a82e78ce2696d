package simulate

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/example/trades-allocator/internal/models"
)

// FillSink receives generated fills.
type FillSink interface {
	SubmitFill(f models.Fill) error
}

// SplitSink receives generated split tables.
type SplitSink interface {
	PublishSplits(table map[string]float64) error
}

// FillSinkFunc adapts a function to FillSink.
type FillSinkFunc func(models.Fill) error

func (f FillSinkFunc) SubmitFill(fill models.Fill) error { return f(fill) }

// SplitSinkFunc adapts a function to SplitSink.
type SplitSinkFunc func(map[string]float64) error

func (f SplitSinkFunc) PublishSplits(table map[string]float64) error { return f(table) }

// RunFills sends one fill per tick, delayed by a random jitter below jitter,
// until ctx is done. Sink errors are logged and the loop keeps going.
func RunFills(ctx context.Context, gen *FillGenerator, interval, jitter time.Duration, sink FillSink, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("fill simulator stopped", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			if jitter > 0 {
				t := time.NewTimer(time.Duration(rand.Int63n(int64(jitter))))
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
			f := gen.Next()
			if err := sink.SubmitFill(f); err != nil {
				logger.Warn("submit fill", zap.String("fill_id", f.ID), zap.Error(err))
				continue
			}
			logger.Debug("fill sent",
				zap.String("fill_id", f.ID),
				zap.String("instrument", f.Instrument),
				zap.Int64("quantity", f.Quantity),
				zap.Float64("price", f.Price),
			)
		}
	}
}

// RunSplits publishes a table immediately and then once per tick until ctx is
// done.
func RunSplits(ctx context.Context, gen *SplitGenerator, interval time.Duration, sink SplitSink, logger *zap.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	publish := func() {
		table := gen.Next()
		if err := sink.PublishSplits(table); err != nil {
			logger.Warn("publish splits", zap.Error(err))
		}
	}
	publish()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("split simulator stopped", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			publish()
		}
	}
}
