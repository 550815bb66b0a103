package api

import (
	"net/http"
	"time"

	"PulseChat/logger"
	"PulseChat/module/chat/state"
	"PulseChat/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// handleWS streams composed view-model snapshots. Updates are coalesced: a
// slow client only ever sees the latest snapshot, never a backlog.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	updates := make(chan state.ViewModel, 1)
	cancel := s.engine.View().Subscribe(func(vm state.ViewModel) {
		select {
		case updates <- vm:
		default:
			// drop the stale pending snapshot, keep the newest
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- vm:
			default:
			}
		}
	})

	done := make(chan struct{})

	// reader: only serves close detection
	safe.SafeGo(func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	safe.SafeGo(func() {
		defer cancel()
		defer func() { _ = conn.Close() }()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case vm := <-updates:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(vm); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
