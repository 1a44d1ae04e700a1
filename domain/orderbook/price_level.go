package orderbook

import "fmt"

// PriceLevel aggregates every live order resting at one price on one side.
// It holds no reference to the orders themselves.
type PriceLevel struct {
	Price      Price
	TotalSize  uint64
	OrderCount uint64
}

func (p *PriceLevel) add(size uint64) {
	p.TotalSize += size
	p.OrderCount++
}

// reduce takes size off the level, clamping at zero.
func (p *PriceLevel) reduce(size uint64) {
	if size >= p.TotalSize {
		p.TotalSize = 0
		return
	}
	p.TotalSize -= size
}

func (p *PriceLevel) dropOrder() {
	if p.OrderCount > 0 {
		p.OrderCount--
	}
}

// Empty reports whether the level must leave its ladder.
func (p *PriceLevel) Empty() bool {
	return p.OrderCount == 0 || p.TotalSize == 0
}

func (p *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{Price=%s, Orders=%d, TotalSize=%d}", p.Price, p.OrderCount, p.TotalSize)
}
