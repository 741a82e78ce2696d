// Package splits holds the account -> percentage table that drives allocation.
//
// A Table is immutable once built. The Store swaps whole tables through an
// atomic pointer, so readers never block and never see a partial table.
package splits

import (
	"sort"
	"sync/atomic"
)

// Table is an immutable split table. Accounts are kept in sorted order, which
// is also the iteration order used by allocation.
type Table struct {
	accounts []string
	pct      map[string]float64
	version  uint64
}

var empty = &Table{pct: map[string]float64{}}

// NewTable copies m into a new Table.
func NewTable(m map[string]float64) *Table {
	t := &Table{
		accounts: make([]string, 0, len(m)),
		pct:      make(map[string]float64, len(m)),
	}
	for account, pct := range m {
		t.accounts = append(t.accounts, account)
		t.pct[account] = pct
	}
	sort.Strings(t.accounts)
	return t
}

func (t *Table) Len() int { return len(t.accounts) }

// Version is the publish count at which the table became current. Tables
// built outside a Store have version 0.
func (t *Table) Version() uint64 { return t.version }

// Accounts returns the account ids in iteration order.
func (t *Table) Accounts() []string {
	out := make([]string, len(t.accounts))
	copy(out, t.accounts)
	return out
}

func (t *Table) Percent(account string) (float64, bool) {
	p, ok := t.pct[account]
	return p, ok
}

// Range calls fn for each account in iteration order until fn returns false.
func (t *Table) Range(fn func(account string, pct float64) bool) {
	for _, a := range t.accounts {
		if !fn(a, t.pct[a]) {
			return
		}
	}
}

// Highest returns the account with the largest percentage. Ties go to the
// first account in iteration order.
func (t *Table) Highest() (string, bool) {
	if len(t.accounts) == 0 {
		return "", false
	}
	best := t.accounts[0]
	for _, a := range t.accounts[1:] {
		if t.pct[a] > t.pct[best] {
			best = a
		}
	}
	return best, true
}

func (t *Table) Sum() float64 {
	var s float64
	for _, a := range t.accounts {
		s += t.pct[a]
	}
	return s
}

// Map returns a copy of the table.
func (t *Table) Map() map[string]float64 {
	out := make(map[string]float64, len(t.pct))
	for k, v := range t.pct {
		out[k] = v
	}
	return out
}

// Store publishes the current Table. The table and its version travel in the
// same pointer, so a reader always sees a matching pair.
type Store struct {
	cur atomic.Pointer[Table]
}

func NewStore() *Store { return &Store{} }

// Update replaces the whole table. The sum is not validated.
func (s *Store) Update(m map[string]float64) *Table {
	t := NewTable(m)
	for {
		old := s.cur.Load()
		t.version = 1
		if old != nil {
			t.version = old.version + 1
		}
		if s.cur.CompareAndSwap(old, t) {
			return t
		}
	}
}

// Current returns the table in effect now, or an empty table if none was set.
func (s *Store) Current() *Table {
	if t := s.cur.Load(); t != nil {
		return t
	}
	return empty
}

// Version counts the updates applied so far.
func (s *Store) Version() uint64 { return s.Current().version }
