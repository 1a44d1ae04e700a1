package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbp10/domain/orderbook"
	"mbp10/infra/metrics"
	"mbp10/service"
)

type fakeBook struct {
	view    service.View
	has     bool
	running bool
}

func (f *fakeBook) Latest() (service.View, bool) { return f.view, f.has }
func (f *fakeBook) Running() bool                { return f.running }

type fakeJournal struct {
	before uint64
	err    error
}

func (f *fakeJournal) TruncateBefore(seq uint64) (int, error) {
	f.before = seq
	return 2, f.err
}

func populated() *fakeBook {
	book := orderbook.New()
	for i, p := range []orderbook.Price{10_000_000_000, 9_990_000_000, 9_980_000_000} {
		book.Apply(orderbook.Event{OrderID: uint64(i + 1), Price: p, Size: 100, Action: orderbook.Add, Side: orderbook.Bid})
	}
	ev := orderbook.Event{TsRecv: "t9", OrderID: 9, Price: 10_050_000_000, Size: 30, Action: orderbook.Add, Side: orderbook.Ask}
	book.Apply(ev)
	return &fakeBook{
		has:     true,
		running: true,
		view: service.View{
			Row:       3,
			Event:     ev,
			Snapshot:  book.Snapshot(ev.TsRecv),
			Orders:    4,
			BidLevels: 3,
			AskLevels: 1,
			Stats:     service.Stats{Messages: 4, Total: 2 * time.Microsecond},
		},
	}
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s := NewServer(&fakeBook{}, nil, "run-1", zerolog.Nop())
	rec, body := do(t, s.Handler(), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "run-1", body["run_id"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestBookBeforeFirstEvent(t *testing.T) {
	s := NewServer(&fakeBook{}, nil, "", zerolog.Nop())
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/v1/book")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["error"], "no events")
}

func TestBook(t *testing.T) {
	s := NewServer(populated(), nil, "", zerolog.Nop())
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/v1/book")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["row"])
	assert.Equal(t, float64(4), body["orders"])
	bids := body["bids"].([]any)
	require.Len(t, bids, 3)
	assert.Equal(t, "10", bids[0].(map[string]any)["px"])
	assert.Equal(t, "9.98", bids[2].(map[string]any)["px"])
	asks := body["asks"].([]any)
	require.Len(t, asks, 1)
	assert.Equal(t, "10.05", asks[0].(map[string]any)["px"])
}

func TestSideWithDepth(t *testing.T) {
	s := NewServer(populated(), nil, "", zerolog.Nop())

	rec, body := do(t, s.Handler(), http.MethodGet, "/api/v1/book/bid?depth=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bid", body["side"])
	assert.Len(t, body["levels"], 2)

	rec, body = do(t, s.Handler(), http.MethodGet, "/api/v1/book/ask")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["levels"], 1)

	rec, _ = do(t, s.Handler(), http.MethodGet, "/api/v1/book/bid?depth=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s.Handler(), http.MethodGet, "/api/v1/book/mid")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	s := NewServer(populated(), nil, "", zerolog.Nop())
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), body["messages"])
	assert.Equal(t, string(service.GradeExcellent), body["grade"])
	assert.Equal(t, true, body["running"])
}

func TestTruncate(t *testing.T) {
	s := NewServer(populated(), nil, "", zerolog.Nop())
	rec, _ := do(t, s.Handler(), http.MethodPost, "/api/v1/journal/truncate?before=10")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	j := &fakeJournal{}
	s = NewServer(populated(), nil, "", zerolog.Nop()).WithJournal(j)
	rec, body := do(t, s.Handler(), http.MethodPost, "/api/v1/journal/truncate?before=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(10), j.before)
	assert.Equal(t, float64(2), body["removed_segments"])

	rec, _ = do(t, s.Handler(), http.MethodPost, "/api/v1/journal/truncate")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	j.err = errors.New("io")
	rec, _ = do(t, s.Handler(), http.MethodPost, "/api/v1/journal/truncate?before=1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = do(t, s.Handler(), http.MethodGet, "/api/v1/journal/truncate?before=1")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.RowsWrittenTotal.Add(5)
	s := NewServer(&fakeBook{}, m, "", zerolog.Nop())
	rec, _ := do(t, s.Handler(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mbp10_rows_written_total 5")
}
