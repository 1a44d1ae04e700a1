package orderbook

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prices(l *Ladder) []Price {
	var out []Price
	l.Walk(func(lvl *PriceLevel) bool {
		out = append(out, lvl.Price)
		return true
	})
	return out
}

func TestLadderOrdersBestFirst(t *testing.T) {
	bids, asks := newLadder(Bid), newLadder(Ask)
	for _, p := range []Price{300, 100, 200} {
		bids.add(p, 10)
		asks.add(p, 10)
	}
	assert.Equal(t, []Price{300, 200, 100}, prices(bids))
	assert.Equal(t, []Price{100, 200, 300}, prices(asks))
}

func TestLadderAddAggregatesSamePrice(t *testing.T) {
	l := newLadder(Ask)
	l.add(150, 10)
	l.add(150, 5)

	require.Equal(t, 1, l.Depth())
	lvl := l.Find(150)
	require.NotNil(t, lvl)
	assert.Equal(t, uint64(15), lvl.TotalSize)
	assert.Equal(t, uint64(2), lvl.OrderCount)
	assert.Nil(t, l.Find(151))
}

func TestLadderPruneOnlyEmpty(t *testing.T) {
	l := newLadder(Bid)
	l.add(100, 10)
	lvl := l.Find(100)

	l.prune(lvl)
	assert.Equal(t, 1, l.Depth(), "populated level must stay")

	lvl.reduce(10)
	l.prune(lvl)
	assert.Equal(t, 0, l.Depth())
	assert.Nil(t, l.Find(100))
}

func TestLadderClearThenReuse(t *testing.T) {
	l := newLadder(Ask)
	for p := Price(1); p <= 64; p++ {
		l.add(p, 1)
	}
	l.clear()
	require.Equal(t, 0, l.Depth())

	l.add(7, 3)
	assert.Equal(t, []Price{7}, prices(l))
}

func TestLadderTopStopsAtDepth(t *testing.T) {
	l := newLadder(Bid)
	for p := Price(1); p <= 15; p++ {
		l.add(p, uint64(p))
	}
	var dst [Depth]Level
	l.top(dst[:])
	assert.Equal(t, Level{Price: 15, Size: 15, Count: 1}, dst[0])
	assert.Equal(t, Level{Price: 6, Size: 6, Count: 1}, dst[Depth-1])

	short := newLadder(Ask)
	short.add(42, 1)
	var few [Depth]Level
	short.top(few[:])
	assert.Equal(t, Level{Price: 42, Size: 1, Count: 1}, few[0])
	assert.Equal(t, Level{}, few[1])
}

// Random adds and prunes agree with a map model and keep the walk sorted.
func TestLadderRandomizedAgainstModel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, side := range []Side{Bid, Ask} {
		l := newLadder(side)
		model := map[Price]uint64{}

		for i := 0; i < 5000; i++ {
			p := Price(rng.Intn(400))
			if rng.Intn(3) == 0 {
				if lvl := l.Find(p); lvl != nil {
					lvl.reduce(lvl.TotalSize)
					l.prune(lvl)
				}
				delete(model, p)
				continue
			}
			l.add(p, 1)
			model[p]++
		}

		require.Equal(t, len(model), l.Depth())
		got := prices(l)
		for i := 1; i < len(got); i++ {
			if side == Bid {
				require.Greater(t, got[i-1], got[i])
			} else {
				require.Less(t, got[i-1], got[i])
			}
		}
		for p, size := range model {
			lvl := l.Find(p)
			require.NotNil(t, lvl)
			require.Equal(t, size, lvl.TotalSize)
		}
	}
}
