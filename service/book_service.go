package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mbp10/domain/orderbook"
	"mbp10/infra/feed"
	"mbp10/infra/metrics"
	"mbp10/infra/sequence"
)

// Journal records each event under its sequence number before it is applied.
type Journal interface {
	AppendEvent(seq uint64, ev orderbook.Event) error
}

// View is the state published after each processed event.
type View struct {
	Seq       uint64
	Row       uint64
	Event     orderbook.Event
	Snapshot  orderbook.Snapshot
	Orders    int
	BidLevels int
	AskLevels int
	Stats     Stats
}

type namedSink struct {
	name string
	sink Sink
}

type BookService struct {
	book    *orderbook.OrderBook
	seq     *sequence.Sequencer
	journal Journal
	sinks   []namedSink
	metrics *metrics.Metrics
	log     zerolog.Logger

	latest  atomic.Pointer[View]
	running atomic.Bool
}

var ErrRunning = errors.New("service: already running")

func NewBookService(
	book *orderbook.OrderBook,
	seq *sequence.Sequencer,
	m *metrics.Metrics,
	log zerolog.Logger,
) *BookService {
	return &BookService{
		book:    book,
		seq:     seq,
		metrics: m,
		log:     log.With().Str("component", "book").Logger(),
	}
}

// WithJournal sets the journal every event is appended to.
func (s *BookService) WithJournal(j Journal) *BookService {
	s.journal = j
	return s
}

// AddSink registers a sink. Sinks receive records in registration order.
// Sinks are not closed by the service.
func (s *BookService) AddSink(name string, sink Sink) *BookService {
	s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
	return s
}

//
// ──────────────────────────────────────────────────────────
// Processing
// ──────────────────────────────────────────────────────────
//

// Run consumes src until it reports io.EOF, ctx is cancelled or a journal
// or sink write fails. The returned stats cover every event processed,
// including on error.
func (s *BookService) Run(ctx context.Context, src feed.Source) (Stats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Stats{}, ErrRunning
	}
	defer s.running.Store(false)

	s.log.Info().Int("sinks", len(s.sinks)).Bool("journal", s.journal != nil).Msg("processing started")

	var st Stats
	start := time.Now()

	for {
		ev, err := src.Next(ctx)
		if err != nil {
			st.Total = time.Since(start)
			if errors.Is(err, io.EOF) {
				s.log.Info().Uint64("messages", st.Messages).Msg("input exhausted")
				return st, nil
			}
			return st, fmt.Errorf("read event: %w", err)
		}

		if err := s.process(ev, &st, start); err != nil {
			st.Total = time.Since(start)
			return st, err
		}
	}
}

func (s *BookService) process(ev orderbook.Event, st *Stats, start time.Time) error {
	row := st.Messages
	seq := s.seq.Next()

	if s.journal != nil {
		if err := s.journal.AppendEvent(seq, ev); err != nil {
			return fmt.Errorf("journal seq %d: %w", seq, err)
		}
	}

	if !ev.Action.Known() {
		s.log.Debug().Uint64("seq", seq).Uint8("code", uint8(ev.Action)).Msg("unrecognized action")
	}

	t0 := time.Now()
	s.book.Apply(ev)
	t1 := time.Now()
	snap := s.book.Snapshot(ev.TsRecv)
	t2 := time.Now()

	st.Messages++
	st.Apply += t1.Sub(t0)
	st.Snapshot += t2.Sub(t1)

	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues(ev.Action.String()).Inc()
		s.metrics.ApplyLatencySeconds.Observe(t2.Sub(t0).Seconds())
	}

	if e := s.log.Trace(); e.Enabled() {
		e.Uint64("seq", seq).
			Uint64("row", row).
			Str("action", ev.Action.String()).
			Str("side", ev.Side.String()).
			Str("price", ev.Price.String()).
			Uint64("size", ev.Size).
			Uint64("order_id", ev.OrderID).
			Msg("applied")
	}

	rec := Record{Seq: seq, Row: row, Event: ev, Snapshot: snap}
	for _, ns := range s.sinks {
		if err := ns.sink.Write(rec); err != nil {
			if s.metrics != nil {
				s.metrics.SinkErrorsTotal.WithLabelValues(ns.name).Inc()
			}
			return fmt.Errorf("sink %s row %d: %w", ns.name, row, err)
		}
	}
	if s.metrics != nil && len(s.sinks) > 0 {
		s.metrics.RowsWrittenTotal.Inc()
	}

	st.Total = time.Since(start)
	s.publish(rec, *st)
	return nil
}

// publish stores a complete view for readers and refreshes the book gauges.
func (s *BookService) publish(rec Record, st Stats) {
	v := &View{
		Seq:       rec.Seq,
		Row:       rec.Row,
		Event:     rec.Event,
		Snapshot:  rec.Snapshot,
		Orders:    s.book.Orders(),
		BidLevels: s.book.Depth(orderbook.Bid),
		AskLevels: s.book.Depth(orderbook.Ask),
		Stats:     st,
	}
	s.latest.Store(v)

	if s.metrics != nil {
		s.metrics.LiveOrders.Set(float64(v.Orders))
		s.metrics.BookLevels.WithLabelValues("bid").Set(float64(v.BidLevels))
		s.metrics.BookLevels.WithLabelValues("ask").Set(float64(v.AskLevels))
	}
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// Latest returns the state after the most recent event, if any.
func (s *BookService) Latest() (View, bool) {
	v := s.latest.Load()
	if v == nil {
		return View{}, false
	}
	return *v, true
}

// Running reports whether Run is in progress.
func (s *BookService) Running() bool { return s.running.Load() }
