// Package simulate produces random fills and split tables on timers. It stands
// in for the execution venue and the AUM feed.
package simulate

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/trades-allocator/internal/models"
)

var Instruments = []string{"AAPL", "GOOGL", "INTC", "AMZN", "TSLA", "JPM", "NFLX", "META", "FIDL", "WMT"}

const (
	minPrice    = 100.0
	maxPrice    = 1000.0
	maxQuantity = 100
)

// lockedRand makes a *rand.Rand safe for the concurrent producer loops.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func round(x float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale
}

type FillGenerator struct {
	rng         *lockedRand
	instruments []string
	now         func() time.Time
}

func NewFillGenerator(seed int64) *FillGenerator {
	return &FillGenerator{
		rng:         &lockedRand{r: rand.New(rand.NewSource(seed))},
		instruments: Instruments,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Next returns a fill for a random instrument, price in [100, 1000) to the
// cent and quantity in [-100, 100].
func (g *FillGenerator) Next() models.Fill {
	return models.Fill{
		ID:         uuid.NewString(),
		Instrument: g.instruments[g.rng.Intn(len(g.instruments))],
		Price:      round(minPrice+g.rng.Float64()*(maxPrice-minPrice), 2),
		Quantity:   int64(g.rng.Intn(2*maxQuantity+1) - maxQuantity),
		TS:         g.now(),
	}
}

type SplitGenerator struct {
	rng      *lockedRand
	accounts int
}

func NewSplitGenerator(accounts int, seed int64) *SplitGenerator {
	if accounts <= 0 {
		accounts = 3
	}
	return &SplitGenerator{
		rng:      &lockedRand{r: rand.New(rand.NewSource(seed))},
		accounts: accounts,
	}
}

// Next returns a table over Account1..AccountN summing to exactly 100. Each
// account but the last takes a random slice of what is left, to the cent; the
// last takes the rest.
func (g *SplitGenerator) Next() map[string]float64 {
	hundred := decimal.NewFromInt(100)
	total := decimal.Zero
	out := make(map[string]float64, g.accounts)
	for i := 1; i < g.accounts; i++ {
		left := hundred.Sub(total)
		split := decimal.NewFromFloat(g.rng.Float64()).Mul(left).Round(2)
		if split.GreaterThan(left) {
			split = left
		}
		out[AccountName(i)] = split.InexactFloat64()
		total = total.Add(split)
	}
	out[AccountName(g.accounts)] = hundred.Sub(total).InexactFloat64()
	return out
}

func AccountName(i int) string { return fmt.Sprintf("Account%d", i) }
