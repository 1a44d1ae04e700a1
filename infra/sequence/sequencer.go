// Package sequence numbers processed events. The counter keys journal
// records and outbox entries; it is seeded past whatever a previous run
// left in either, so sequences never repeat across runs.
package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing numbers. Reads are safe from any
// goroutine; Next is meant for the single writer.
type Sequencer struct {
	issued atomic.Uint64
	used   atomic.Bool
}

// New returns a sequencer whose first Next yields start.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.reset(start)
	return s
}

// Next issues the next number.
func (s *Sequencer) Next() uint64 {
	if s.used.CompareAndSwap(false, true) {
		return s.issued.Load()
	}
	return s.issued.Add(1)
}

// Last returns the most recently issued number and false before the first Next.
func (s *Sequencer) Last() (uint64, bool) {
	return s.issued.Load(), s.used.Load()
}

// reset makes the next issued number start.
func (s *Sequencer) reset(start uint64) {
	s.used.Store(false)
	s.issued.Store(start)
}
