package orderbook

// Depth is the number of price levels a snapshot carries per side.
const Depth = 10

// Level is one aggregated row of a snapshot. Unpopulated rows are zero.
type Level struct {
	Price Price
	Size  uint64
	Count uint64
}

// Snapshot is a point-in-time MBP-10 view of the book. It is a plain value:
// the arrays are copied, so later book mutations never reach it.
type Snapshot struct {
	TsRecv string
	Bids   [Depth]Level
	Asks   [Depth]Level
}

// BestBid returns the top bid row and whether it is populated.
func (s *Snapshot) BestBid() (Level, bool) {
	return s.Bids[0], s.Bids[0].Count > 0
}

// BestAsk returns the top ask row and whether it is populated.
func (s *Snapshot) BestAsk() (Level, bool) {
	return s.Asks[0], s.Asks[0].Count > 0
}

// Populated returns how many rows of the side hold a price level.
func (s *Snapshot) Populated(side Side) int {
	var rows *[Depth]Level
	switch side {
	case Bid:
		rows = &s.Bids
	case Ask:
		rows = &s.Asks
	default:
		return 0
	}
	n := 0
	for _, l := range rows {
		if l.Count == 0 {
			break
		}
		n++
	}
	return n
}
