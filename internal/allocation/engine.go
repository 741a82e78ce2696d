// Package allocation splits trade fills across accounts and books the shares
// on the position ledger.
//
// Shares are floor(total * pct / 100). The flooring remainder goes to the
// account with the highest percentage, ties broken by the table's sorted
// account order. On a buy the remainder is added to that account's share. On a
// sell it is subtracted from that account's reduction, and the reduction is
// then kept within [0, held].
package allocation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/example/trades-allocator/internal/domain"
	"github.com/example/trades-allocator/internal/metrics"
	"github.com/example/trades-allocator/internal/models"
	"github.com/example/trades-allocator/internal/splits"
)

// SplitSource supplies the table in effect when an allocation starts.
type SplitSource interface {
	Current() *splits.Table
}

// Ledger is the position store the engine writes to.
type Ledger interface {
	Get(account, instrument string) (models.Position, bool)
	Apply(account, instrument string, delta int64, price float64) (models.Position, int64)
}

// Result describes one allocation run. Shares holds the signed quantity booked
// per account: positive on buys, negative on sells.
type Result struct {
	FillID           string
	Instrument       string
	Side             domain.Side
	Price            float64
	Shares           map[string]int64
	Remainder        int64
	RemainderAccount string
}

// Total returns the absolute quantity booked across accounts.
func (r Result) Total() int64 {
	var n int64
	for _, s := range r.Shares {
		if s < 0 {
			n -= s
		} else {
			n += s
		}
	}
	return n
}

// Error wraps an allocation failure with the fill it belongs to.
type Error struct {
	FillID     string
	Instrument string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("allocate fill %s (%s): %v", e.FillID, e.Instrument, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Engine struct {
	splits  SplitSource
	ledger  Ledger
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewEngine(src SplitSource, ledger Ledger, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		splits:  src,
		ledger:  ledger,
		logger:  logger,
		metrics: m,
	}
}

// Allocate books one fill. A zero quantity is a no-op. The split table is read
// once and used for the whole run.
func (e *Engine) Allocate(f models.Fill) (Result, error) {
	start := time.Now()
	side := f.Side()
	res := Result{FillID: f.ID, Instrument: f.Instrument, Side: side, Price: f.Price}
	if side == domain.SideNone {
		return res, nil
	}
	if err := f.Validate(); err != nil {
		e.metrics.ObserveAllocation(side.String(), "invalid", time.Since(start))
		return res, &Error{FillID: f.ID, Instrument: f.Instrument, Err: err}
	}
	table := e.splits.Current()
	if table.Len() == 0 {
		e.metrics.ObserveAllocation(side.String(), "no_splits", time.Since(start))
		return res, &Error{FillID: f.ID, Instrument: f.Instrument, Err: domain.ErrNoSplitsAvailable}
	}

	if side == domain.SideBuy {
		e.buy(f, table, &res)
	} else {
		e.sell(f, table, &res)
	}

	e.metrics.ObserveAllocation(side.String(), "success", time.Since(start))
	e.metrics.AddAllocated(side.String(), res.Total())
	e.logger.Debug("fill allocated",
		zap.String("fill_id", f.ID),
		zap.String("instrument", f.Instrument),
		zap.Int64("quantity", f.Quantity),
		zap.Float64("price", f.Price),
		zap.Any("shares", res.Shares),
		zap.Int64("remainder", res.Remainder),
		zap.String("remainder_account", res.RemainderAccount),
	)
	return res, nil
}

func (e *Engine) buy(f models.Fill, table *splits.Table, res *Result) {
	total := f.Quantity
	shares := make(map[string]int64, table.Len())
	var allocated int64
	table.Range(func(account string, pct float64) bool {
		s := share(total, pct)
		shares[account] = s
		allocated += s
		return true
	})

	if rem := total - allocated; rem != 0 {
		top, _ := table.Highest()
		s := shares[top] + rem
		if s < 0 {
			// only reachable when the table sums to more than 100
			e.logger.Warn("buy remainder drives highest split share negative; share clamped",
				zap.String("fill_id", f.ID),
				zap.String("account", top),
				zap.Int64("share", s),
				zap.Float64("split_sum", table.Sum()),
			)
			s = 0
		}
		shares[top] = s
		res.Remainder, res.RemainderAccount = rem, top
	}

	res.Shares = make(map[string]int64, len(shares))
	table.Range(func(account string, _ float64) bool {
		_, applied := e.ledger.Apply(account, f.Instrument, shares[account], f.Price)
		res.Shares[account] = applied
		return true
	})
}

func (e *Engine) sell(f models.Fill, table *splits.Table, res *Result) {
	total := -f.Quantity
	held := make(map[string]int64, table.Len())
	reductions := make(map[string]int64, table.Len())
	var reduced int64
	table.Range(func(account string, pct float64) bool {
		pos, _ := e.ledger.Get(account, f.Instrument)
		held[account] = pos.Quantity
		r := min(share(total, pct), pos.Quantity)
		reductions[account] = r
		reduced += r
		return true
	})

	if rem := total - reduced; rem != 0 {
		top, _ := table.Highest()
		r := reductions[top] - rem
		if r < 0 || r > held[top] {
			clamped := max(0, min(r, held[top]))
			e.logger.Warn("sell remainder exceeds highest split holding; reduction clamped",
				zap.String("fill_id", f.ID),
				zap.String("instrument", f.Instrument),
				zap.String("account", top),
				zap.Int64("held", held[top]),
				zap.Int64("reduction", r),
				zap.Int64("clamped", clamped),
			)
			r = clamped
		}
		reductions[top] = r
		res.Remainder, res.RemainderAccount = rem, top
	}

	// held was read outside the entry locks; a concurrent sell may have
	// removed part of it, so Shares records what Apply actually took.
	res.Shares = make(map[string]int64, len(reductions))
	table.Range(func(account string, _ float64) bool {
		_, applied := e.ledger.Apply(account, f.Instrument, -reductions[account], f.Price)
		res.Shares[account] = applied
		return true
	})
}

// share is floor(total * pct / 100), never negative.
func share(total int64, pct float64) int64 {
	s := math.Floor(float64(total) * pct / 100)
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	return int64(s)
}

// IsNoSplits reports whether err is a dropped fill for lack of a split table.
func IsNoSplits(err error) bool { return errors.Is(err, domain.ErrNoSplitsAvailable) }
