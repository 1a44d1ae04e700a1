package httpapi

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const streamWriteTimeout = 5 * time.Second

// handleStream pushes the book over a websocket each time a new row has
// been processed. Rows between two polls are coalesced.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "stream ended")

	ctx := c.CloseRead(r.Context())
	t := time.NewTicker(s.streamInterval)
	defer t.Stop()

	var last uint64
	sent := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			_ = c.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-t.C:
			v, ok := s.book.Latest()
			if !ok || (sent && v.Seq == last) {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, c, newBookResponse(v))
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
			last, sent = v.Seq, true
		}
	}
}
