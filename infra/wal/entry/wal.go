package entry

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"mbp10/domain/orderbook"
)

const defaultSegmentSize = 64 << 20

type Config struct {
	Dir         string
	SegmentSize int64
	// SyncEvery fsyncs after that many appends. Zero leaves durability to
	// Sync and Close.
	SyncEvery int
}

// WAL appends records to the current segment and rotates when it fills.
// A reopened journal always starts a fresh segment after the existing ones
// and only accepts sequences above the highest one already stored.
type WAL struct {
	mu        sync.Mutex
	dir       string
	segSize   int64
	syncEvery int
	pending   int
	lastSeq   uint64
	hasSeq    bool

	current  *segment
	segIndex int
	frame    []byte
	payload  []byte
	closed   bool
}

var ErrClosed = errors.New("journal: closed")

func Open(cfg Config) (*WAL, error) {
	if cfg.Dir == "" {
		return nil, errors.New("journal: empty directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}

	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	next := 0
	if len(files) > 0 {
		last, err := segmentIndex(files[len(files)-1])
		if err != nil {
			return nil, fmt.Errorf("journal segment %s: %w", files[len(files)-1], err)
		}
		next = last + 1
	}

	// The newest non-empty segment holds the highest sequence. Only the
	// last file can end in a torn frame, and it is cut back before a new
	// segment follows it.
	var lastSeq uint64
	hasSeq := false
	for i := len(files) - 1; i >= 0 && !hasSeq; i-- {
		var err error
		if i == len(files)-1 {
			lastSeq, hasSeq, err = repairTail(files[i])
		} else {
			lastSeq, hasSeq, err = maxSeqInSegment(files[i])
		}
		if err != nil {
			return nil, fmt.Errorf("journal segment %s: %w", files[i], err)
		}
	}

	seg, err := openSegment(cfg.Dir, next)
	if err != nil {
		return nil, fmt.Errorf("open journal segment: %w", err)
	}

	return &WAL{
		dir:       cfg.Dir,
		segSize:   cfg.SegmentSize,
		syncEvery: cfg.SyncEvery,
		current:   seg,
		segIndex:  next,
		lastSeq:   lastSeq,
		hasSeq:    hasSeq,
	}, nil
}

// NextSeq returns the lowest sequence the journal will accept.
func (w *WAL) NextSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasSeq {
		return 0
	}
	return w.lastSeq + 1
}

// AppendEvent journals ev under seq, which must exceed every sequence
// already in the journal.
func (w *WAL) AppendEvent(seq uint64, ev orderbook.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.hasSeq && seq <= w.lastSeq {
		return fmt.Errorf("%w: %d after %d", ErrNonMonotonic, seq, w.lastSeq)
	}
	w.payload = EncodeEvent(w.payload[:0], ev)
	w.frame = appendFrame(w.frame[:0], NewRecord(RecordEvent, seq, w.payload))
	if err := w.current.append(w.frame); err != nil {
		return fmt.Errorf("journal append seq %d: %w", seq, err)
	}
	w.lastSeq, w.hasSeq = seq, true

	if w.syncEvery > 0 {
		w.pending++
		if w.pending >= w.syncEvery {
			w.pending = 0
			if err := w.current.sync(); err != nil {
				return fmt.Errorf("journal sync: %w", err)
			}
		}
	}

	if w.current.offset >= w.segSize {
		return w.rotate()
	}
	return nil
}

func (w *WAL) rotate() error {
	if err := w.current.close(); err != nil {
		return fmt.Errorf("close journal segment: %w", err)
	}
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return fmt.Errorf("open journal segment: %w", err)
	}
	w.current = seg
	return nil
}

// Sync flushes buffered frames and fsyncs the current segment.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.pending = 0
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.current.sync(); err != nil {
		_ = w.current.close()
		return err
	}
	return w.current.close()
}

// TruncateBefore removes closed segments whose records all have a sequence
// at or below seq. The segment being written is never removed.
func (w *WAL) TruncateBefore(seq uint64) (int, error) {
	w.mu.Lock()
	current := segmentPath(w.dir, w.segIndex)
	w.mu.Unlock()

	files, err := listSegments(w.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range files {
		if path == current {
			continue
		}
		maxSeq, ok, err := maxSeqInSegment(path)
		if err != nil || !ok {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("remove journal segment: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}
