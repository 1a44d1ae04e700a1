package service

import "mbp10/domain/orderbook"

// Record is one processed event together with the book state it produced.
// Row is the zero-based index of the event within the current run. Seq
// numbers the event for the journal and the outbox and keeps increasing
// across runs that share them.
type Record struct {
	Seq      uint64
	Row      uint64
	Event    orderbook.Event
	Snapshot orderbook.Snapshot
}

// Sink consumes one record per processed event. Encoding, synthetic
// metadata and delivery are entirely the sink's concern.
type Sink interface {
	Write(Record) error
	Close() error
}
