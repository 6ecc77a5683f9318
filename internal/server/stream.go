package server

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// streamEvents pushes the caller's events over a websocket as they commit.
// The client only listens; anything it sends is discarded.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	events, unsubscribe := s.host.Events().Subscribe()
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ping.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		case rec, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			if rec.Account != caller {
				continue
			}
			if err := wsjson.Write(ctx, conn, s.eventResponse(rec)); err != nil {
				s.log.Debug("websocket write", zap.Error(err))
				return
			}
		}
	}
}
