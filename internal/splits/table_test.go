package splits

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCurrentEmpty(t *testing.T) {
	s := NewStore()
	cur := s.Current()
	require.NotNil(t, cur)
	assert.Equal(t, 0, cur.Len())
	_, ok := cur.Highest()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), s.Version())
}

func TestUpdateReplacesWholeTable(t *testing.T) {
	s := NewStore()
	s.Update(map[string]float64{"A": 50, "B": 50})
	s.Update(map[string]float64{"C": 100})

	cur := s.Current()
	assert.Equal(t, []string{"C"}, cur.Accounts())
	_, ok := cur.Percent("A")
	assert.False(t, ok)
	assert.Equal(t, uint64(2), s.Version())
}

func TestUpdateCopiesInput(t *testing.T) {
	s := NewStore()
	in := map[string]float64{"A": 70, "B": 30}
	s.Update(in)
	in["A"] = 0
	in["Z"] = 1

	p, _ := s.Current().Percent("A")
	assert.Equal(t, 70.0, p)
	assert.Equal(t, 2, s.Current().Len())

	out := s.Current().Map()
	out["B"] = 99
	p, _ = s.Current().Percent("B")
	assert.Equal(t, 30.0, p)
}

func TestCapturedTableSurvivesUpdate(t *testing.T) {
	s := NewStore()
	s.Update(map[string]float64{"A": 60, "B": 40})
	held := s.Current()
	s.Update(map[string]float64{"C": 100})

	assert.Equal(t, []string{"A", "B"}, held.Accounts())
	assert.Equal(t, []string{"C"}, s.Current().Accounts())
}

func TestHighest(t *testing.T) {
	tests := []struct {
		name  string
		table map[string]float64
		want  string
	}{
		{"unique max", map[string]float64{"A": 30, "B": 70}, "B"},
		{"tie goes to first sorted", map[string]float64{"Z": 40, "M": 40, "B": 20}, "M"},
		{"single", map[string]float64{"A": 100}, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewTable(tt.table).Highest()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRangeOrderAndSum(t *testing.T) {
	tbl := NewTable(map[string]float64{"Account3": 20, "Account1": 50, "Account2": 30})
	var seen []string
	tbl.Range(func(a string, _ float64) bool {
		seen = append(seen, a)
		return true
	})
	assert.Equal(t, []string{"Account1", "Account2", "Account3"}, seen)
	assert.InDelta(t, 100.0, tbl.Sum(), 1e-9)

	seen = seen[:0]
	tbl.Range(func(a string, _ float64) bool {
		seen = append(seen, a)
		return false
	})
	assert.Len(t, seen, 1)
}

func TestConcurrentReadersNeverSeePartialTable(t *testing.T) {
	s := NewStore()
	a := map[string]float64{"A": 50, "B": 50}
	b := map[string]float64{"C": 25, "D": 25, "E": 25, "F": 25}
	s.Update(a)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				s.Update(b)
			} else {
				s.Update(a)
			}
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				cur := s.Current()
				n := cur.Len()
				if n != 2 && n != 4 {
					t.Errorf("unexpected table size %d", n)
					return
				}
				assert.InDelta(t, 100.0, cur.Sum(), 1e-9)
			}
		}()
	}
	wg.Wait()
}

func TestVersionTravelsWithTable(t *testing.T) {
	const updates = 20000
	s := NewStore()
	done := make(chan struct{})

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				cur := s.Current()
				if cur.Len() == 0 {
					continue
				}
				p, _ := cur.Percent("A")
				if uint64(p) != cur.Version() {
					t.Errorf("table %v paired with version %d", p, cur.Version())
					return
				}
			}
		}()
	}
	for i := 1; i <= updates; i++ {
		s.Update(map[string]float64{"A": float64(i)})
	}
	close(done)
	wg.Wait()
	assert.Equal(t, uint64(updates), s.Version())
}

func TestConcurrentUpdatesGetDistinctVersions(t *testing.T) {
	s := NewStore()
	var (
		mu   sync.Mutex
		seen = map[uint64]bool{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				v := s.Update(map[string]float64{"A": 100}).Version()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 8*200)
	assert.Equal(t, uint64(8*200), s.Version())
}
