// Package reporter periodically snapshots positions for downstream consumers.
package reporter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/trades-allocator/internal/metrics"
	"github.com/example/trades-allocator/internal/models"
)

type PositionReader interface {
	ReadPositions() models.Snapshot
}

// Publisher ships a report. A nil Publisher means log-only.
type Publisher interface {
	PublishReport(ctx context.Context, r models.PositionReport) error
}

type Reporter struct {
	source    PositionReader
	publisher Publisher
	interval  time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func New(source PositionReader, publisher Publisher, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) *Reporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		source:    source,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Report takes one snapshot and publishes it.
func (r *Reporter) Report(ctx context.Context) (models.PositionReport, error) {
	snap := r.source.ReadPositions()
	rep := models.PositionReport{
		Positions:   snap,
		Accounts:    len(snap),
		Open:        snap.Positions(),
		MarketValue: snap.MarketValue(),
		Exposure:    make(map[string]int64),
		TS:          r.now(),
	}
	for _, byInstrument := range snap {
		for instrument := range byInstrument {
			if _, ok := rep.Exposure[instrument]; !ok {
				rep.Exposure[instrument] = snap.Quantity(instrument)
			}
		}
	}
	r.logger.Info("positions",
		zap.Int("accounts", rep.Accounts),
		zap.Int("open_positions", rep.Open),
		zap.Float64("market_value", rep.MarketValue),
		zap.Any("exposure", rep.Exposure),
		zap.Any("positions", snap),
	)
	if r.publisher == nil {
		r.metrics.IncReport("logged")
		return rep, nil
	}
	if err := r.publisher.PublishReport(ctx, rep); err != nil {
		r.metrics.IncReport("error")
		return rep, err
	}
	r.metrics.IncReport("published")
	return rep, nil
}

// Run reports once per interval until ctx is done. Publish failures are
// logged; the next tick tries again with a fresh snapshot.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Report(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("publish positions", zap.Error(err))
			}
		}
	}
}
