package orderbook

type Side uint8

const (
	None Side = iota
	Bid
	Ask
)

// ParseSide maps a feed side marker. Anything but 'B' or 'A' is None.
func ParseSide(c byte) Side {
	switch c {
	case 'B':
		return Bid
	case 'A':
		return Ask
	default:
		return None
	}
}

// Byte returns the feed marker for s.
func (s Side) Byte() byte {
	switch s {
	case Bid:
		return 'B'
	case Ask:
		return 'A'
	default:
		return 'N'
	}
}

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "none"
	}
}

// opposite returns the resting side hit by a trade reported for s.
func (s Side) opposite() Side {
	switch s {
	case Bid:
		return Ask
	case Ask:
		return Bid
	default:
		return None
	}
}

// Action is the raw action code of an MBO record. Codes outside the named
// set are carried through unchanged and treated as inert.
type Action byte

const (
	Add    Action = 'A'
	Cancel Action = 'C'
	Trade  Action = 'T'
	Reset  Action = 'R'
	Fill   Action = 'F'
)

// Known reports whether a is one of the named action kinds.
func (a Action) Known() bool {
	switch a {
	case Add, Cancel, Trade, Reset, Fill:
		return true
	}
	return false
}

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Cancel:
		return "cancel"
	case Trade:
		return "trade"
	case Reset:
		return "reset"
	case Fill:
		return "fill"
	default:
		return "unknown"
	}
}

// Event is one normalized MBO record.
type Event struct {
	TsRecv  string
	OrderID uint64
	Price   Price
	Size    uint64
	Action  Action
	Side    Side
}

// Order is a live resting order as held by the order index.
type Order struct {
	Price Price
	Size  uint64
	Side  Side
}
