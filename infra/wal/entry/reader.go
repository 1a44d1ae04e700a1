package entry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"mbp10/domain/orderbook"
	"mbp10/infra/feed"
)

// Reader replays a journal directory as an event source. Segments are
// listed once, when the reader is opened.
type Reader struct {
	files   []string
	next    int
	f       *os.File
	r       *bufio.Reader
	lastSeq uint64
	seen    bool
}

var _ feed.Source = (*Reader)(nil)

func NewReader(dir string) (*Reader, error) {
	files, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return &Reader{files: files}, nil
}

func (r *Reader) Next(ctx context.Context) (orderbook.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return orderbook.Event{}, err
		}
		if r.r == nil {
			if r.next >= len(r.files) {
				return orderbook.Event{}, io.EOF
			}
			if err := r.openNext(); err != nil {
				return orderbook.Event{}, err
			}
		}

		rec, err := readRecord(r.r)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) && r.next < len(r.files) {
				return orderbook.Event{}, fmt.Errorf("%w: truncated frame in %s", ErrCorruptRecord, r.f.Name())
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if cerr := r.closeCurrent(); cerr != nil {
					return orderbook.Event{}, cerr
				}
				continue
			}
			return orderbook.Event{}, err
		}

		if r.seen && rec.Seq <= r.lastSeq {
			return orderbook.Event{}, fmt.Errorf("%w: %d after %d", ErrNonMonotonic, rec.Seq, r.lastSeq)
		}
		r.seen = true
		r.lastSeq = rec.Seq

		if rec.Type != RecordEvent {
			continue
		}
		return DecodeEvent(rec.Data)
	}
}

func (r *Reader) openNext() error {
	f, err := os.Open(r.files[r.next])
	if err != nil {
		return fmt.Errorf("open journal segment: %w", err)
	}
	r.next++
	r.f = f
	r.r = bufio.NewReaderSize(f, 64<<10)
	return nil
}

func (r *Reader) closeCurrent() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f, r.r = nil, nil
	return err
}

func (r *Reader) Close() error {
	r.next = len(r.files)
	return r.closeCurrent()
}
