package v1

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"goa.design/clue/log"

	"github.com/xiaot623/gogo/streamer/internal/hub"
)

// WatchThread upgrades to a WebSocket that receives a copy of every event
// streamed on the thread. Messages sent by the client are ignored.
// GET /v1/threads/:thread_id/watch
func (h *Handler) WatchThread(c echo.Context) error {
	threadID := c.Param("thread_id")
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Errorf(c.Request().Context(), err, "failed to upgrade watch connection")
		return err
	}

	conn := h.watchers.NewConnection(ws, threadID)
	h.watchers.Register(conn)
	ws.SetReadLimit(h.cfg.MaxMessageSize)

	ctx := log.With(context.WithoutCancel(c.Request().Context()),
		log.KV{K: "thread_id", V: threadID}, log.KV{K: "conn_id", V: conn.ID})
	log.Info(ctx, log.KV{K: "msg", V: "watcher connected"})

	go h.writePump(ctx, conn)
	go h.readPump(ctx, conn)

	return nil
}

func (h *Handler) readPump(ctx context.Context, conn *hub.Connection) {
	defer func() {
		h.watchers.Unregister(conn)
		conn.Close()
		log.Info(ctx, log.KV{K: "msg", V: "watcher disconnected"})
	}()

	conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf(ctx, "watch connection error: %v", err)
			}
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *hub.Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				// Hub dropped the watcher
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debugf(ctx, "failed to write watch message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
