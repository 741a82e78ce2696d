// Package ledger keeps per-account, per-instrument positions.
//
// Every (account, instrument) pair is an entry with its own mutex; the entries
// live in a concurrent map, so writers on different pairs never contend and
// there is no ledger-wide lock. An entry whose quantity returns to zero is
// marked dead under its lock and then removed from the map. A writer that
// loaded the entry before the removal sees the dead flag and starts over on a
// fresh entry.
package ledger

import (
	"sort"
	"sync"

	"github.com/example/trades-allocator/internal/cache"
	"github.com/example/trades-allocator/internal/models"
)

type key struct {
	account    string
	instrument string
}

type entry struct {
	mu   sync.Mutex
	pos  models.Position
	dead bool
}

type Ledger struct {
	entries *cache.MapCache[key, *entry]
}

func New() *Ledger {
	return &Ledger{entries: cache.NewMapCache[key, *entry]()}
}

// Get returns the position for the pair without creating it.
func (l *Ledger) Get(account, instrument string) (models.Position, bool) {
	e, ok := l.entries.Get(key{account, instrument})
	if !ok {
		return models.Position{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return models.Position{}, false
	}
	return e.pos, true
}

// Apply adds delta to the position and sets MarketValue to the new quantity
// times price. The quantity never goes below zero, and a position that ends at
// zero is removed. A non-positive delta on a missing position changes nothing.
// The second result is the change actually made, which differs from delta
// when the quantity was clamped.
func (l *Ledger) Apply(account, instrument string, delta int64, price float64) (models.Position, int64) {
	k := key{account, instrument}
	for {
		var e *entry
		if delta > 0 {
			e, _ = l.entries.GetOrSet(k, &entry{pos: models.Position{Instrument: instrument}})
		} else {
			var ok bool
			if e, ok = l.entries.Get(k); !ok {
				return models.Position{Instrument: instrument}, 0
			}
		}

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		prev := e.pos.Quantity
		q := prev + delta
		if q < 0 {
			q = 0
		}
		e.pos.Quantity = q
		e.pos.MarketValue = float64(q) * price
		pos := e.pos
		if q == 0 {
			e.dead = true
			l.entries.CompareAndDelete(k, e)
		}
		e.mu.Unlock()
		return pos, q - prev
	}
}

// Snapshot returns a deep copy of all open positions. Each entry is locked
// only while it is copied.
func (l *Ledger) Snapshot() models.Snapshot {
	out := make(models.Snapshot)
	l.entries.Range(func(k key, e *entry) bool {
		e.mu.Lock()
		pos, live := e.pos, !e.dead && e.pos.Quantity > 0
		e.mu.Unlock()
		if !live {
			return true
		}
		byInstrument, ok := out[k.account]
		if !ok {
			byInstrument = make(map[string]models.Position)
			out[k.account] = byInstrument
		}
		byInstrument[k.instrument] = pos
		return true
	})
	return out
}

// Account returns a copy of one account's open positions.
func (l *Ledger) Account(account string) (map[string]models.Position, bool) {
	out := make(map[string]models.Position)
	l.entries.Range(func(k key, e *entry) bool {
		if k.account != account {
			return true
		}
		e.mu.Lock()
		pos, live := e.pos, !e.dead && e.pos.Quantity > 0
		e.mu.Unlock()
		if live {
			out[k.instrument] = pos
		}
		return true
	})
	return out, len(out) > 0
}

// Accounts lists the accounts holding at least one position, sorted.
func (l *Ledger) Accounts() []string {
	snap := l.Snapshot()
	out := make([]string, 0, len(snap))
	for a := range snap {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
