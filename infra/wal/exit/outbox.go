package exit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	"mbp10/service"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Entry --------------------

const entryHeader = 1 + 4 + 8

var ErrInvalidEntry = errors.New("outbox: invalid entry")

// Entry is the stored form of one snapshot awaiting delivery.
type Entry struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, entryHeader+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[entryHeader:], e.Payload)
	return buf
}

// decodeEntry copies b; pebble owns the slice it hands out.
func decodeEntry(b []byte) (Entry, error) {
	if len(b) < entryHeader {
		return Entry{}, fmt.Errorf("%w: %d bytes", ErrInvalidEntry, len(b))
	}
	return Entry{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[entryHeader:]...),
	}, nil
}

// -------------------- Outbox --------------------

type Options struct {
	// Sync makes every write durable before returning.
	Sync bool
	// Log receives pebble's own messages. Nil discards them.
	Log *zerolog.Logger
}

// Outbox is a service.Sink storing snapshots for asynchronous publication,
// keyed by event sequence.
type Outbox struct {
	db *pebble.DB
	wo *pebble.WriteOptions

	mu   sync.Mutex
	next uint64
}

var _ service.Sink = (*Outbox)(nil)

func Open(dir string, opts Options) (*Outbox, error) {
	log := zerolog.Nop()
	if opts.Log != nil {
		log = opts.Log.With().Str("component", "outbox").Logger()
	}
	db, err := pebble.Open(dir, &pebble.Options{Logger: pebbleLogger{log: log}})
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	wo := pebble.NoSync
	if opts.Sync {
		wo = pebble.Sync
	}
	o := &Outbox{db: db, wo: wo}
	if o.next, err = o.loadNextSeq(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return o, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Write stores rec as a NEW entry under its sequence.
func (o *Outbox) Write(rec service.Record) error {
	payload, err := EncodeMessage(rec)
	if err != nil {
		return fmt.Errorf("encode seq %d: %w", rec.Seq, err)
	}
	return o.Put(rec.Seq, payload)
}

// Put inserts payload for seq in state NEW, replacing any previous entry,
// and raises the high-water mark NextSeq reports in the same batch.
func (o *Outbox) Put(seq uint64, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	b := o.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyFor(seq), encodeEntry(Entry{State: StateNew, Payload: payload}), nil); err != nil {
		return err
	}
	raise := seq+1 > o.next
	if raise {
		if err := b.Set([]byte(nextSeqKey), binary.BigEndian.AppendUint64(nil, seq+1), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(o.wo); err != nil {
		return err
	}
	if raise {
		o.next = seq + 1
	}
	return nil
}

// NextSeq returns one past the highest sequence ever put, including
// entries already delivered and deleted.
func (o *Outbox) NextSeq() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.next
}

func (o *Outbox) loadNextSeq() (uint64, error) {
	val, closer, err := o.db.Get([]byte(nextSeqKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("%w: next seq of %d bytes", ErrInvalidEntry, len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

// UpdateState records a delivery attempt, keeping the payload.
func (o *Outbox) UpdateState(seq uint64, state State, retries uint32) error {
	e, err := o.Get(seq)
	if err != nil {
		return err
	}
	e.State = state
	e.Retries = retries
	e.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeEntry(e), o.wo)
}

// Delete removes a delivered entry.
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), o.wo)
}

// Get returns the entry stored for seq, or pebble.ErrNotFound.
func (o *Outbox) Get(seq uint64) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()
	return decodeEntry(val)
}

// -------------------- Scan --------------------

// ScanByState visits entries in state in sequence order until fn returns
// an error or limit entries were visited. A limit of zero means no limit.
func (o *Outbox) ScanByState(state State, limit int, fn func(seq uint64, e Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) == 0 || State(val[0]) != state {
			continue
		}
		e, err := decodeEntry(val)
		if err != nil {
			return err
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, e); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return iter.Error()
}

// Pending counts entries not yet acknowledged.
func (o *Outbox) Pending() (int, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if val := iter.Value(); len(val) > 0 && State(val[0]) != StateAcked {
			n++
		}
	}
	return n, iter.Error()
}

// -------------------- Helpers --------------------

const (
	keyPrefix  = "snap/"
	nextSeqKey = "meta/next-seq"
)

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	if len(b) <= len(keyPrefix) {
		return 0, fmt.Errorf("%w: key %q", ErrInvalidEntry, b)
	}
	return strconv.ParseUint(string(b[len(keyPrefix):]), 10, 64)
}

// pebbleLogger routes pebble's internal messages through zerolog.
type pebbleLogger struct {
	log zerolog.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.log.Fatal().Msgf(format, args...)
}
