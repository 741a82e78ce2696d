package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/example/trades-allocator/internal/domain"
)

// Fill is a single executed trade. Quantity is signed: +buy / -sell.
type Fill struct {
	ID         string    `json:"fill_id"`
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	Quantity   int64     `json:"quantity"`
	TS         time.Time `json:"ts"`
}

func (f Fill) Side() domain.Side { return domain.SideOf(f.Quantity) }

// Validate rejects fills that cannot be booked. Zero quantities are valid.
func (f Fill) Validate() error {
	if strings.TrimSpace(f.Instrument) == "" {
		return fmt.Errorf("%w: instrument is required", domain.ErrInvalidFill)
	}
	if math.IsNaN(f.Price) || math.IsInf(f.Price, 0) || f.Price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %v", domain.ErrInvalidFill, f.Price)
	}
	return nil
}

type Position struct {
	Instrument  string  `json:"instrument"`
	Quantity    int64   `json:"quantity"`
	MarketValue float64 `json:"market_value"`
}

// Snapshot is a detached copy of the ledger: account -> instrument -> position.
type Snapshot map[string]map[string]Position

// Positions returns the number of open positions in the snapshot.
func (s Snapshot) Positions() int {
	n := 0
	for _, byInstrument := range s {
		n += len(byInstrument)
	}
	return n
}

func (s Snapshot) MarketValue() float64 {
	var total float64
	for _, byInstrument := range s {
		for _, p := range byInstrument {
			total += p.MarketValue
		}
	}
	return total
}

// Quantity sums the held quantity of one instrument across accounts.
func (s Snapshot) Quantity(instrument string) int64 {
	var total int64
	for _, byInstrument := range s {
		total += byInstrument[instrument].Quantity
	}
	return total
}

// SplitUpdate is the wire form of a published split table.
type SplitUpdate struct {
	Splits map[string]float64 `json:"splits"`
	TS     time.Time          `json:"ts"`
}

// Validate rejects tables that would leave nothing to allocate against:
// empty tables, blank account ids and percentages outside [0, 100].
func (u SplitUpdate) Validate() error {
	if len(u.Splits) == 0 {
		return fmt.Errorf("%w: splits must not be empty", domain.ErrInvalidSplits)
	}
	for account, pct := range u.Splits {
		if strings.TrimSpace(account) == "" {
			return fmt.Errorf("%w: account id must not be empty", domain.ErrInvalidSplits)
		}
		if math.IsNaN(pct) || pct < 0 || pct > 100 {
			return fmt.Errorf("%w: percentage for %s must be within [0, 100], got %v", domain.ErrInvalidSplits, account, pct)
		}
	}
	return nil
}

// PositionReport is what the reporter publishes on each tick.
type PositionReport struct {
	Positions   Snapshot `json:"positions"`
	Accounts    int      `json:"accounts"`
	Open        int      `json:"open_positions"`
	MarketValue float64  `json:"market_value"`
	// Exposure is the total quantity held per instrument across accounts.
	Exposure map[string]int64 `json:"exposure"`
	TS       time.Time        `json:"ts"`
}

// AccountSummary describes one account: its current split and what it holds.
type AccountSummary struct {
	Account     string  `json:"account"`
	Percent     float64 `json:"percent"`
	Open        int     `json:"open_positions"`
	MarketValue float64 `json:"market_value"`
}
