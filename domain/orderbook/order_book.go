package orderbook

// OrderBook rebuilds an aggregated price book from MBO events.
// It is single-writer and deterministic: callers feed events in arrival
// order from one goroutine, and no method ever fails.
type OrderBook struct {
	orders map[uint64]Order
	bids   *Ladder
	asks   *Ladder
}

func New() *OrderBook {
	return &OrderBook{
		orders: make(map[uint64]Order),
		bids:   newLadder(Bid),
		asks:   newLadder(Ask),
	}
}

// Apply dispatches one event. Fill and unrecognized codes are accepted
// and leave the book untouched.
func (b *OrderBook) Apply(ev Event) {
	switch ev.Action {
	case Add:
		b.addOrder(ev)
	case Cancel:
		b.cancelOrder(ev)
	case Trade:
		b.executeTrade(ev)
	case Reset:
		b.Reset()
	}
}

// Reset empties the order index and both ladders.
func (b *OrderBook) Reset() {
	clear(b.orders)
	b.bids.clear()
	b.asks.clear()
}

// Snapshot copies the top Depth levels of each side, tagged with ts.
func (b *OrderBook) Snapshot(ts string) Snapshot {
	s := Snapshot{TsRecv: ts}
	b.asks.top(s.Asks[:])
	b.bids.top(s.Bids[:])
	return s
}

// ---- read helpers ----

// Order returns the live order with the given id.
func (b *OrderBook) Order(id uint64) (Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// Orders returns the number of live orders in the index.
func (b *OrderBook) Orders() int { return len(b.orders) }

// Level returns a copy of the level resting at price on side.
func (b *OrderBook) Level(side Side, price Price) (PriceLevel, bool) {
	l := b.ladder(side)
	if l == nil {
		return PriceLevel{}, false
	}
	lvl := l.Find(price)
	if lvl == nil {
		return PriceLevel{}, false
	}
	return *lvl, true
}

// Depth returns the number of resident price levels on side.
func (b *OrderBook) Depth(side Side) int {
	l := b.ladder(side)
	if l == nil {
		return 0
	}
	return l.Depth()
}

func (b *OrderBook) ladder(side Side) *Ladder {
	switch side {
	case Bid:
		return b.bids
	case Ask:
		return b.asks
	default:
		return nil
	}
}

// ---- handlers ----

func (b *OrderBook) addOrder(ev Event) {
	if ev.OrderID == 0 {
		return
	}
	// A repeated id replaces the resting order, so its old contribution
	// leaves the level first. This departs from a plain overwrite-and-add,
	// which for adds of 10 then 20 at one price leaves (30, 2) at the
	// level for a single live order; here the level reads (20, 1).
	if prev, ok := b.orders[ev.OrderID]; ok {
		b.retract(prev, prev.Size, true)
	}
	b.orders[ev.OrderID] = Order{Price: ev.Price, Size: ev.Size, Side: ev.Side}
	if l := b.ladder(ev.Side); l != nil {
		l.add(ev.Price, ev.Size)
	}
}

func (b *OrderBook) cancelOrder(ev Event) {
	o, ok := b.orders[ev.OrderID]
	if !ok {
		return
	}

	cancelSize := min(ev.Size, o.Size)
	full := cancelSize == o.Size
	if full {
		delete(b.orders, ev.OrderID)
	} else {
		o.Size -= cancelSize
		b.orders[ev.OrderID] = o
	}
	b.retract(o, cancelSize, full)
}

// retract takes size (and the order itself when full) off the level the
// order rests at. A level already removed by a trade is not recreated.
func (b *OrderBook) retract(o Order, size uint64, full bool) {
	l := b.ladder(o.Side)
	if l == nil {
		return
	}
	lvl := l.Find(o.Price)
	if lvl == nil {
		return
	}
	lvl.reduce(size)
	if full {
		lvl.dropOrder()
	}
	l.prune(lvl)
}

// executeTrade decrements the resting side. Trades are reported from the
// aggressor's side, so an ask-side trade consumes bids and vice versa.
// Per-order reconciliation arrives later as its own cancel.
func (b *OrderBook) executeTrade(ev Event) {
	l := b.ladder(ev.Side.opposite())
	if l == nil {
		return
	}
	lvl := l.Find(ev.Price)
	if lvl == nil {
		return
	}
	lvl.reduce(ev.Size)
	l.prune(lvl)
}
