package entry

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"mbp10/domain/orderbook"
)

// Event payload fields.
const (
	fieldTsRecv  protowire.Number = 1
	fieldOrderID protowire.Number = 2
	fieldPrice   protowire.Number = 3
	fieldSize    protowire.Number = 4
	fieldAction  protowire.Number = 5
	fieldSide    protowire.Number = 6
)

// EncodeEvent appends the wire form of ev to dst. Zero fields are omitted.
func EncodeEvent(dst []byte, ev orderbook.Event) []byte {
	if ev.TsRecv != "" {
		dst = protowire.AppendTag(dst, fieldTsRecv, protowire.BytesType)
		dst = protowire.AppendString(dst, ev.TsRecv)
	}
	if ev.OrderID != 0 {
		dst = protowire.AppendTag(dst, fieldOrderID, protowire.VarintType)
		dst = protowire.AppendVarint(dst, ev.OrderID)
	}
	if ev.Price != 0 {
		dst = protowire.AppendTag(dst, fieldPrice, protowire.VarintType)
		dst = protowire.AppendVarint(dst, protowire.EncodeZigZag(int64(ev.Price)))
	}
	if ev.Size != 0 {
		dst = protowire.AppendTag(dst, fieldSize, protowire.VarintType)
		dst = protowire.AppendVarint(dst, ev.Size)
	}
	if ev.Action != 0 {
		dst = protowire.AppendTag(dst, fieldAction, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(ev.Action))
	}
	if ev.Side != orderbook.None {
		dst = protowire.AppendTag(dst, fieldSide, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(ev.Side))
	}
	return dst
}

// DecodeEvent parses a payload written by EncodeEvent. Unknown fields are
// skipped so older readers accept newer journals.
func DecodeEvent(b []byte) (orderbook.Event, error) {
	var ev orderbook.Event
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ev, fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
		}
		b = b[n:]

		if typ == protowire.VarintType && num >= fieldOrderID && num <= fieldSide {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ev, fmt.Errorf("%w: field %d: %v", ErrCorruptRecord, num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldOrderID:
				ev.OrderID = v
			case fieldPrice:
				ev.Price = orderbook.Price(protowire.DecodeZigZag(v))
			case fieldSize:
				ev.Size = v
			case fieldAction:
				ev.Action = orderbook.Action(v)
			case fieldSide:
				ev.Side = orderbook.Side(v)
			}
			continue
		}

		if num == fieldTsRecv && typ == protowire.BytesType {
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return ev, fmt.Errorf("%w: ts_recv: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			ev.TsRecv = s
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return ev, fmt.Errorf("%w: field %d: %v", ErrCorruptRecord, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return ev, nil
}
