// Package feed supplies normalized MBO events to the book service.
// Every source returns events in arrival order and io.EOF once the
// stream is exhausted.
package feed

import (
	"context"
	"strconv"
	"strings"

	"mbp10/domain/orderbook"
)

// Source yields already-parsed events in arrival order.
type Source interface {
	Next(ctx context.Context) (orderbook.Event, error)
}

// Column positions in an MBO record.
const (
	colTsRecv  = 0
	colAction  = 5
	colSide    = 6
	colPrice   = 7
	colSize    = 8
	colOrderID = 10

	minFields = 11
)

// ParseFields normalizes one split MBO record. Records with fewer than
// eleven fields are rejected; malformed numbers read as zero.
func ParseFields(fields []string) (orderbook.Event, bool) {
	if len(fields) < minFields {
		return orderbook.Event{}, false
	}

	ev := orderbook.Event{
		TsRecv:  fields[colTsRecv],
		Action:  orderbook.Action(' '),
		Side:    orderbook.None,
		Size:    parseUint(fields[colSize]),
		OrderID: parseUint(fields[colOrderID]),
	}
	if a := fields[colAction]; a != "" {
		ev.Action = orderbook.Action(a[0])
	}
	if s := fields[colSide]; s != "" {
		ev.Side = orderbook.ParseSide(s[0])
	}
	if p := strings.TrimSpace(fields[colPrice]); p != "" {
		if price, err := orderbook.ParsePrice(p); err == nil {
			ev.Price = price
		}
	}
	return ev, true
}

// ParseLine splits a raw comma-separated record and normalizes it.
func ParseLine(line string) (orderbook.Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return orderbook.Event{}, false
	}
	return ParseFields(strings.Split(line, ","))
}

func parseUint(s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
