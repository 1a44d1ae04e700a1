package exit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbp10/domain/orderbook"
	"mbp10/service"
)

func openTest(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func sampleRecord(seq uint64) service.Record {
	book := orderbook.New()
	ev := orderbook.Event{TsRecv: "t", OrderID: 9, Price: 5_510_000_000, Size: 100, Action: orderbook.Add, Side: orderbook.Bid}
	book.Apply(ev)
	return service.Record{Seq: seq, Row: seq % 4, Event: ev, Snapshot: book.Snapshot(ev.TsRecv)}
}

func TestEntryEncoding(t *testing.T) {
	e := Entry{State: StateFailed, Retries: 3, LastAttempt: 12345, Payload: []byte("x")}
	got, err := decodeEntry(encodeEntry(e))
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = decodeEntry([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestMessageJSON(t *testing.T) {
	b, err := EncodeMessage(sampleRecord(6))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, float64(6), m["seq"])
	assert.Equal(t, float64(2), m["row"])
	assert.Equal(t, "A", m["action"])
	assert.Equal(t, "B", m["side"])
	assert.Equal(t, "5.51", m["price"])
	bids := m["bids"].([]any)
	require.Len(t, bids, 1)
	assert.Equal(t, "5.51", bids[0].(map[string]any)["px"])
	assert.Empty(t, m["asks"])
}

func TestWriteScanUpdateDelete(t *testing.T) {
	o := openTest(t)
	for row := uint64(0); row < 5; row++ {
		require.NoError(t, o.Write(sampleRecord(row)))
	}

	n, err := o.Pending()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	var rows []uint64
	require.NoError(t, o.ScanByState(StateNew, 3, func(row uint64, e Entry) error {
		rows = append(rows, row)
		assert.NotEmpty(t, e.Payload)
		return nil
	}))
	assert.Equal(t, []uint64{0, 1, 2}, rows)

	require.NoError(t, o.UpdateState(1, StateFailed, 2))
	e, err := o.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, e.State)
	assert.Equal(t, uint32(2), e.Retries)
	assert.NotZero(t, e.LastAttempt)
	assert.NotEmpty(t, e.Payload)

	rows = rows[:0]
	require.NoError(t, o.ScanByState(StateFailed, 0, func(row uint64, _ Entry) error {
		rows = append(rows, row)
		return nil
	}))
	assert.Equal(t, []uint64{1}, rows)

	require.NoError(t, o.Delete(0))
	require.NoError(t, o.UpdateState(2, StateAcked, 0))
	_, err = o.Get(0)
	assert.ErrorIs(t, err, pebble.ErrNotFound)

	n, err = o.Pending()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpdateMissingRow(t *testing.T) {
	o := openTest(t)
	assert.ErrorIs(t, o.UpdateState(42, StateSent, 0), pebble.ErrNotFound)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "NEW", StateNew.String())
	assert.Equal(t, "FAILED", StateFailed.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}

func TestNextSeqSurvivesReopenAndDelete(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), o.NextSeq())
	for seq := uint64(0); seq < 6; seq++ {
		require.NoError(t, o.Write(sampleRecord(seq)))
	}
	require.NoError(t, o.Delete(5))
	assert.Equal(t, uint64(6), o.NextSeq())
	require.NoError(t, o.Close())

	o, err = Open(dir, Options{})
	require.NoError(t, err)
	defer o.Close()
	require.Equal(t, uint64(6), o.NextSeq())

	// A second run continuing from NextSeq keeps every undelivered entry.
	start := o.NextSeq()
	for i := uint64(0); i < 6; i++ {
		require.NoError(t, o.Write(sampleRecord(start+i)))
	}
	n, err := o.Pending()
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, uint64(12), o.NextSeq())

	// Rewriting an older entry never lowers the mark.
	require.NoError(t, o.Put(3, []byte("{}")))
	assert.Equal(t, uint64(12), o.NextSeq())
}

func TestPebbleMessagesGoThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	l := pebbleLogger{log: log}
	l.Infof("replayed %d keys", 6)
	l.Errorf("disk %s", "full")

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"message":"replayed 6 keys"`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"message":"disk full"`)
}

func TestOpenUsesConfiguredLogger(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, o.Write(sampleRecord(0)))
	require.NoError(t, o.Close())

	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	o, err = Open(dir, Options{Log: &log})
	require.NoError(t, err)
	require.NoError(t, o.Close())
	assert.Contains(t, buf.String(), `"component":"outbox"`)
}
