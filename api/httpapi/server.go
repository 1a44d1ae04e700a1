// Package httpapi serves the latest book state, run statistics and
// Prometheus metrics over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"mbp10/domain/orderbook"
	"mbp10/infra/metrics"
	exitwal "mbp10/infra/wal/exit"
	"mbp10/service"
)

// BookReader is the read side of the book service.
type BookReader interface {
	Latest() (service.View, bool)
	Running() bool
}

// Truncator drops journal segments that are fully below a sequence.
type Truncator interface {
	TruncateBefore(seq uint64) (int, error)
}

type Server struct {
	book      BookReader
	journal   Truncator
	metrics   *metrics.Metrics
	runID     string
	startTime time.Time
	router    *mux.Router
	log       zerolog.Logger

	streamInterval time.Duration
	closing        chan struct{}
	closeOnce      sync.Once
}

func NewServer(book BookReader, m *metrics.Metrics, runID string, log zerolog.Logger) *Server {
	s := &Server{
		book:      book,
		metrics:   m,
		runID:     runID,
		startTime: time.Now(),
		router:    mux.NewRouter(),
		log:       log.With().Str("component", "http").Logger(),

		streamInterval: 100 * time.Millisecond,
		closing:        make(chan struct{}),
	}
	s.registerRoutes()
	return s
}

// WithJournal enables the journal truncation endpoint.
func (s *Server) WithJournal(j Truncator) *Server {
	s.journal = j
	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(requestID, accessLog(s.log))

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/book", s.handleBook).Methods(http.MethodGet)
	api.HandleFunc("/book/{side:bid|ask}", s.handleSide).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/journal/truncate", s.handleTruncate).Methods(http.MethodPost)

	s.router.HandleFunc("/ws/book", s.handleStream).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		// No WriteTimeout: hijacked websocket streams keep the deadline.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.closeOnce.Do(func() { close(s.closing) })
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ---------------- handlers ----------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"run_id":         s.runID,
		"running":        s.book.Running(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

type bookResponse struct {
	exitwal.Message
	Orders    int `json:"orders"`
	BidLevels int `json:"bid_levels"`
	AskLevels int `json:"ask_levels"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	v, ok := s.book.Latest()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no events processed yet")
		return
	}
	respondJSON(w, http.StatusOK, newBookResponse(v))
}

func newBookResponse(v service.View) bookResponse {
	return bookResponse{
		Message:   exitwal.NewMessage(service.Record{Seq: v.Seq, Row: v.Row, Event: v.Event, Snapshot: v.Snapshot}),
		Orders:    v.Orders,
		BidLevels: v.BidLevels,
		AskLevels: v.AskLevels,
	}
}

// handleSide serves one side, best first, optionally limited by ?depth=.
func (s *Server) handleSide(w http.ResponseWriter, r *http.Request) {
	v, ok := s.book.Latest()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no events processed yet")
		return
	}

	depth := orderbook.Depth
	if d := r.URL.Query().Get("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "depth must be a positive integer")
			return
		}
		depth = min(n, orderbook.Depth)
	}

	msg := exitwal.NewMessage(service.Record{Seq: v.Seq, Row: v.Row, Event: v.Event, Snapshot: v.Snapshot})
	levels := msg.Bids
	if mux.Vars(r)["side"] == "ask" {
		levels = msg.Asks
	}
	if len(levels) > depth {
		levels = levels[:depth]
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"seq":     v.Seq,
		"row":     v.Row,
		"ts_recv": v.Snapshot.TsRecv,
		"side":    mux.Vars(r)["side"],
		"levels":  levels,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	v, _ := s.book.Latest()
	st := v.Stats
	respondJSON(w, http.StatusOK, map[string]any{
		"messages":         st.Messages,
		"total_us":         st.Total.Microseconds(),
		"apply_us":         st.Apply.Microseconds(),
		"snapshot_us":      st.Snapshot.Microseconds(),
		"per_message_ns":   st.PerMessage().Nanoseconds(),
		"messages_per_sec": st.MessagesPerSecond(),
		"grade":            st.Grade(),
		"running":          s.book.Running(),
	})
}

func (s *Server) handleTruncate(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		respondError(w, http.StatusNotFound, "journal not enabled")
		return
	}
	before, err := strconv.ParseUint(r.URL.Query().Get("before"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "before must be a sequence number")
		return
	}
	removed, err := s.journal.TruncateBefore(before)
	if err != nil {
		s.log.Error().Err(err).Uint64("before", before).Msg("journal truncation failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info().Uint64("before", before).Int("segments", removed).Msg("journal truncated")
	respondJSON(w, http.StatusOK, map[string]any{"removed_segments": removed})
}

// ---------------- helpers ----------------

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}
