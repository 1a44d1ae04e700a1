package feed

import (
	"context"
	"io"

	"mbp10/domain/orderbook"
)

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []orderbook.Event
	pos    int
}

func NewSliceSource(events ...orderbook.Event) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Next(ctx context.Context) (orderbook.Event, error) {
	if err := ctx.Err(); err != nil {
		return orderbook.Event{}, err
	}
	if s.pos >= len(s.events) {
		return orderbook.Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}
