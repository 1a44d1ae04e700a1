package orderbook

import "github.com/google/btree"

const ladderDegree = 32

// Ladder is the set of price levels for one side of the book. The tree is
// ordered best price first (descending for bids, ascending for asks), so
// every walk is an ascend.
type Ladder struct {
	side   Side
	levels *btree.BTreeG[*PriceLevel]
	key    PriceLevel
}

func newLadder(side Side) *Ladder {
	less := func(a, b *PriceLevel) bool { return a.Price < b.Price }
	if side == Bid {
		less = func(a, b *PriceLevel) bool { return a.Price > b.Price }
	}
	return &Ladder{side: side, levels: btree.NewG(ladderDegree, less)}
}

func (l *Ladder) Side() Side { return l.side }

// Depth returns the number of distinct resident prices.
func (l *Ladder) Depth() int { return l.levels.Len() }

// Find returns the level resting at price, or nil.
func (l *Ladder) Find(price Price) *PriceLevel {
	l.key.Price = price
	lvl, _ := l.levels.Get(&l.key)
	return lvl
}

// Walk visits levels best price first until fn returns false.
func (l *Ladder) Walk(fn func(*PriceLevel) bool) {
	l.levels.Ascend(fn)
}

func (l *Ladder) add(price Price, size uint64) {
	lvl := l.Find(price)
	if lvl == nil {
		lvl = &PriceLevel{Price: price}
		l.levels.ReplaceOrInsert(lvl)
	}
	lvl.add(size)
}

// prune removes lvl once it no longer holds anything.
func (l *Ladder) prune(lvl *PriceLevel) {
	if lvl.Empty() {
		l.levels.Delete(lvl)
	}
}

func (l *Ladder) clear() { l.levels.Clear(false) }

// top copies at most len(dst) levels into dst, best first.
func (l *Ladder) top(dst []Level) {
	i := 0
	l.Walk(func(lvl *PriceLevel) bool {
		if i >= len(dst) {
			return false
		}
		dst[i] = Level{Price: lvl.Price, Size: lvl.TotalSize, Count: lvl.OrderCount}
		i++
		return i < len(dst)
	})
}
