// Package mbpcsv writes MBP-10 records as comma-separated rows, one per
// processed MBO event.
package mbpcsv

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/zeebo/blake3"

	"mbp10/domain/orderbook"
	"mbp10/service"
)

const (
	rtypeMBP10     = 10
	firstRowFlags  = 8
	flags          = 130
	tsInDelta      = 165000
	pricePlaces    = 2
	depthFromRow   = 4
	fieldsPerLevel = 6
)

// Metadata carries the fixed columns the feed format requires.
type Metadata struct {
	PublisherID  uint32
	InstrumentID uint32
	Symbol       string
	SequenceBase uint64
}

func DefaultMetadata() Metadata {
	return Metadata{
		PublisherID:  2,
		InstrumentID: 1108,
		Symbol:       "ARL",
		SequenceBase: 851012,
	}
}

// Writer is a service.Sink producing the MBP-10 CSV. Every flushed byte is
// also fed to a blake3 hash, so two runs can be compared by digest.
type Writer struct {
	w      *csv.Writer
	hash   *blake3.Hasher
	closer io.Closer
	meta   Metadata
	row    []string
	header bool
}

var _ service.Sink = (*Writer)(nil)

func NewWriter(w io.Writer, meta Metadata) *Writer {
	h := blake3.New()
	return &Writer{
		w:    csv.NewWriter(io.MultiWriter(w, h)),
		hash: h,
		meta: meta,
		row:  make([]string, 0, len(Header())),
	}
}

// Create truncates path and writes to it; Close flushes and releases the file.
func Create(path string, meta Metadata) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create mbp output: %w", err)
	}
	w := NewWriter(f, meta)
	w.closer = f
	return w, nil
}

// Header returns the column names; the first, unnamed column is the row index.
func Header() []string {
	h := []string{"", "ts_recv", "ts_event", "rtype", "publisher_id", "instrument_id",
		"action", "side", "depth", "price", "size", "flags", "ts_in_delta", "sequence"}
	for i := 0; i < orderbook.Depth; i++ {
		n := fmt.Sprintf("%02d", i)
		h = append(h,
			"bid_px_"+n, "bid_sz_"+n, "bid_ct_"+n,
			"ask_px_"+n, "ask_sz_"+n, "ask_ct_"+n)
	}
	return append(h, "symbol", "order_id")
}

func (w *Writer) Write(rec service.Record) error {
	if !w.header {
		if err := w.w.Write(Header()); err != nil {
			return err
		}
		w.header = true
	}
	return w.w.Write(w.format(rec))
}

func (w *Writer) format(rec service.Record) []string {
	ev, snap := rec.Event, rec.Snapshot
	first := rec.Row == 0

	rowFlags, delta, seq := flags, tsInDelta, uint64(0)
	if first {
		rowFlags, delta = firstRowFlags, 0
	} else {
		seq = w.meta.SequenceBase + rec.Row - 1
	}

	depth := "0"
	if (ev.Action == orderbook.Add || ev.Action == orderbook.Cancel) && rec.Row > depthFromRow {
		depth = "1"
	}

	price := "0"
	if ev.Price > 0 {
		price = ev.Price.StringFixed(pricePlaces)
	}

	r := append(w.row[:0],
		strconv.FormatUint(rec.Row, 10),
		snap.TsRecv,
		ev.TsRecv,
		strconv.Itoa(rtypeMBP10),
		strconv.FormatUint(uint64(w.meta.PublisherID), 10),
		strconv.FormatUint(uint64(w.meta.InstrumentID), 10),
		string(rune(ev.Action)),
		string(rune(ev.Side.Byte())),
		depth,
		price,
		strconv.FormatUint(ev.Size, 10),
		strconv.Itoa(rowFlags),
		strconv.Itoa(delta),
		strconv.FormatUint(seq, 10),
	)
	for i := 0; i < orderbook.Depth; i++ {
		r = appendLevel(r, snap.Bids[i])
		r = appendLevel(r, snap.Asks[i])
	}
	r = append(r, w.meta.Symbol, strconv.FormatUint(ev.OrderID, 10))
	w.row = r
	return r
}

func appendLevel(r []string, l orderbook.Level) []string {
	return append(r,
		l.Price.StringFixed(pricePlaces),
		strconv.FormatUint(l.Size, 10),
		strconv.FormatUint(l.Count, 10),
	)
}

// Flush pushes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Digest returns the hex blake3 digest of everything flushed so far.
func (w *Writer) Digest() string {
	return hex.EncodeToString(w.hash.Sum(nil))
}

func (w *Writer) Close() error {
	err := w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
