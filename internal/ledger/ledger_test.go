package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyReplacesMarketValue(t *testing.T) {
	l := New()
	l.Apply("A", "AAPL", 5, 150)
	p, _ := l.Apply("A", "AAPL", 3, 100)
	assert.Equal(t, int64(8), p.Quantity)
	assert.Equal(t, 800.0, p.MarketValue)

	got, ok := l.Get("A", "AAPL")
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestApplyRemovesAtZero(t *testing.T) {
	l := New()
	l.Apply("A", "AAPL", 4, 10)
	p, _ := l.Apply("A", "AAPL", -4, 12)
	assert.Zero(t, p.Quantity)
	assert.Zero(t, p.MarketValue)

	_, ok := l.Get("A", "AAPL")
	assert.False(t, ok)
	assert.Empty(t, l.Snapshot())
}

func TestApplyClampsAtZero(t *testing.T) {
	l := New()
	l.Apply("A", "AAPL", 2, 10)
	p, applied := l.Apply("A", "AAPL", -5, 10)
	assert.Zero(t, p.Quantity)
	assert.Equal(t, int64(-2), applied)
	_, ok := l.Get("A", "AAPL")
	assert.False(t, ok)
}

func TestApplyNonPositiveDeltaOnMissingIsNoop(t *testing.T) {
	l := New()
	_, applied := l.Apply("A", "AAPL", -3, 10)
	assert.Zero(t, applied)
	l.Apply("A", "AAPL", 0, 10)
	_, ok := l.Get("A", "AAPL")
	assert.False(t, ok)
	assert.Empty(t, l.Snapshot())
}

func TestApplyZeroDeltaRepricesExisting(t *testing.T) {
	l := New()
	l.Apply("A", "AAPL", 2, 10)
	p, _ := l.Apply("A", "AAPL", 0, 25)
	assert.Equal(t, int64(2), p.Quantity)
	assert.Equal(t, 50.0, p.MarketValue)
}

func TestSnapshotIsDetached(t *testing.T) {
	l := New()
	l.Apply("A", "AAPL", 5, 100)
	l.Apply("B", "GOOGL", 1, 150)

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	pos := snap["A"]["AAPL"]
	pos.Quantity = 1000
	snap["A"]["AAPL"] = pos
	delete(snap, "B")

	got, _ := l.Get("A", "AAPL")
	assert.Equal(t, int64(5), got.Quantity)
	_, ok := l.Get("B", "GOOGL")
	assert.True(t, ok)
}

func TestAccountAndAccounts(t *testing.T) {
	l := New()
	l.Apply("B", "AAPL", 1, 100)
	l.Apply("A", "AAPL", 1, 100)
	l.Apply("A", "TSLA", 2, 200)

	positions, ok := l.Account("A")
	require.True(t, ok)
	assert.Len(t, positions, 2)
	assert.Equal(t, 400.0, positions["TSLA"].MarketValue)

	_, ok = l.Account("C")
	assert.False(t, ok)
	assert.Equal(t, []string{"A", "B"}, l.Accounts())
}

func TestConcurrentApplySamePair(t *testing.T) {
	l := New()
	const workers, perWorker = 8, 500
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				l.Apply("A", "AAPL", 1, 10)
			}
		}()
	}
	wg.Wait()

	p, ok := l.Get("A", "AAPL")
	require.True(t, ok)
	assert.Equal(t, int64(workers*perWorker), p.Quantity)
	assert.Equal(t, float64(workers*perWorker)*10, p.MarketValue)
}

func TestConcurrentBuySellNeverLosesOrGoesNegative(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	// Buyers and sellers race around zero so entries are removed and
	// recreated while other writers hold references to them.
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				l.Apply("A", "AAPL", 1, 10)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				p, _ := l.Apply("A", "AAPL", -1, 10)
				if p.Quantity < 0 {
					t.Errorf("negative quantity %d", p.Quantity)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			for _, byInstrument := range l.Snapshot() {
				for _, p := range byInstrument {
					if p.MarketValue != float64(p.Quantity)*10 {
						t.Errorf("torn position %+v", p)
						return
					}
				}
			}
		}
	}()
	wg.Wait()

	p, _ := l.Get("A", "AAPL")
	assert.GreaterOrEqual(t, p.Quantity, int64(0))
	assert.LessOrEqual(t, p.Quantity, int64(4000))
}

func TestConcurrentSellsReportOnlyWhatWasRemoved(t *testing.T) {
	l := New()
	l.Apply("A", "AAPL", 10, 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		removed int64
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, applied := l.Apply("A", "AAPL", -10, 10)
			mu.Lock()
			removed -= applied
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), removed)
	_, ok := l.Get("A", "AAPL")
	assert.False(t, ok)
}
