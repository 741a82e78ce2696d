package holdings

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond"
	"go.uber.org/zap"

	"github.com/example/trades-allocator/internal/allocation"
	"github.com/example/trades-allocator/internal/domain"
	"github.com/example/trades-allocator/internal/ledger"
	"github.com/example/trades-allocator/internal/metrics"
	"github.com/example/trades-allocator/internal/models"
	"github.com/example/trades-allocator/internal/splits"
)

var (
	ErrStopped   = errors.New("holdings service stopped")
	ErrQueueFull = errors.New("allocation queue full")
)

type Options struct {
	// Workers bounds the number of fills allocated concurrently.
	Workers int
	// QueueCapacity bounds fills waiting for a worker.
	QueueCapacity int
	// NonBlocking makes SubmitFill fail with ErrQueueFull instead of waiting.
	NonBlocking bool
	// ErrorBuffer is the capacity of the Errors channel.
	ErrorBuffer int
	IdleTimeout time.Duration
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 50
	}
	if o.ErrorBuffer <= 0 {
		o.ErrorBuffer = 64
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
}

// Service is the engine's boundary: fills and split tables come in, position
// snapshots go out.
type Service struct {
	Splits *splits.Store
	Ledger *ledger.Ledger
	Engine *allocation.Engine

	pool    *pond.WorkerPool
	opts    Options
	errs    chan error
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	stopped atomic.Bool
}

func New(opts Options, logger *zap.Logger, m *metrics.Metrics) *Service {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	st := splits.NewStore()
	l := ledger.New()
	s := &Service{
		Splits:  st,
		Ledger:  l,
		Engine:  allocation.NewEngine(st, l, logger.Named("allocation"), m),
		opts:    opts,
		errs:    make(chan error, opts.ErrorBuffer),
		logger:  logger,
		metrics: m,
	}
	s.pool = pond.New(
		opts.Workers,
		opts.QueueCapacity,
		pond.MinWorkers(1),
		pond.IdleTimeout(opts.IdleTimeout),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			logger.Error("allocation worker panic recovered", zap.Any("panic", p))
		}),
	)
	m.RegisterPoolGauges(s.pool.RunningWorkers, s.pool.WaitingTasks)
	return s
}

// SubmitFill queues a fill for allocation and returns without waiting for it.
// Allocation failures are logged and delivered on Errors; only intake
// failures are returned here.
func (s *Service) SubmitFill(f models.Fill) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped.Load() {
		return ErrStopped
	}
	task := func() { s.allocate(f) }
	if s.opts.NonBlocking {
		if !s.pool.TrySubmit(task) {
			return ErrQueueFull
		}
		return nil
	}
	s.pool.Submit(task)
	return nil
}

// Allocate runs one fill synchronously on the caller's goroutine.
func (s *Service) Allocate(f models.Fill) (allocation.Result, error) {
	return s.Engine.Allocate(f)
}

func (s *Service) allocate(f models.Fill) {
	res, err := s.Engine.Allocate(f)
	if err != nil {
		reason := "invalid_fill"
		if allocation.IsNoSplits(err) {
			reason = "no_splits"
		}
		s.logger.Warn("fill dropped",
			zap.String("reason", reason),
			zap.String("fill_id", f.ID),
			zap.String("instrument", f.Instrument),
			zap.Int64("quantity", f.Quantity),
			zap.Float64("price", f.Price),
			zap.Error(err),
		)
		s.report(err)
		return
	}
	if res.Side != domain.SideNone {
		s.logger.Debug("fill processed", zap.String("fill_id", f.ID), zap.Int64("allocated", res.Total()))
	}
}

func (s *Service) report(err error) {
	select {
	case s.errs <- err:
	default:
		s.metrics.IncErrorDropped()
	}
}

// Errors delivers allocation failures. Errors are dropped, and counted, when
// nobody drains the channel.
func (s *Service) Errors() <-chan error { return s.errs }

// PublishSplits replaces the active split table.
func (s *Service) PublishSplits(table map[string]float64) {
	t := s.Splits.Update(table)
	s.metrics.IncSplitUpdate()
	fields := []zap.Field{
		zap.Any("splits", t.Map()),
		zap.Uint64("version", t.Version()),
	}
	if sum := t.Sum(); t.Len() > 0 && (sum < 99.999 || sum > 100.001) {
		s.logger.Warn("split table does not sum to 100", append(fields, zap.Float64("sum", sum))...)
		return
	}
	s.logger.Info("split table published", fields...)
}

// CurrentSplits returns a copy of the active table and its publish version.
func (s *Service) CurrentSplits() (map[string]float64, uint64) {
	t := s.Splits.Current()
	return t.Map(), t.Version()
}

func (s *Service) ReadPositions() models.Snapshot { return s.Ledger.Snapshot() }

// Accounts lists every account that has a split or holds a position, sorted,
// with its current split and open exposure.
func (s *Service) Accounts() []models.AccountSummary {
	table := s.Splits.Current()
	snap := s.Ledger.Snapshot()
	seen := make(map[string]bool, table.Len())
	var ids []string
	for _, a := range append(table.Accounts(), s.Ledger.Accounts()...) {
		if !seen[a] {
			seen[a] = true
			ids = append(ids, a)
		}
	}
	sort.Strings(ids)

	out := make([]models.AccountSummary, 0, len(ids))
	for _, a := range ids {
		pct, _ := table.Percent(a)
		sum := models.AccountSummary{Account: a, Percent: pct, Open: len(snap[a])}
		for _, p := range snap[a] {
			sum.MarketValue += p.MarketValue
		}
		out = append(out, sum)
	}
	return out
}

func (s *Service) ReadAccount(account string) (map[string]models.Position, bool) {
	return s.Ledger.Account(account)
}

// Stop waits for queued fills to finish and rejects new ones.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped.Swap(true) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.pool.StopAndWait()
	close(s.errs)
}
