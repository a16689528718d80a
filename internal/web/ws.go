package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inercia/specula/internal/bus"
	"github.com/inercia/specula/internal/event"
	"github.com/inercia/specula/internal/logging"
)

const (
	// writeWait is the deadline for a single WebSocket write.
	writeWait = 10 * time.Second
	// pongWait is how long to wait for a pong before declaring the peer dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleEventsWS serves the WebSocket subscribe endpoint. It carries exactly
// the same frames as the SSE endpoint, one JSON envelope per text message,
// starting with server.connected.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err, "client_ip", clientIP(r))
		return
	}

	sub, err := s.bus.Subscribe()
	if err != nil {
		conn.Close()
		return
	}

	logger := logging.WithSubscription(s.logger, sub.ID(), clientIP(r))
	logger.Info("Event stream attached", "transport", "websocket")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go wsWritePump(conn, sub, logger)
	go wsReadPump(conn, sub)
}

// wsWritePump pumps bus events to the WebSocket peer and handles keepalive.
// Any write error ends the subscription; Close is idempotent, so racing with
// the read side or a bus drop is harmless.
func wsWritePump(conn *websocket.Conn, sub *bus.Subscription, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	if err := wsWriteEvent(conn, event.ServerConnected()); err != nil {
		logger.Debug("WebSocket write failed", "error", err)
		return
	}

	for {
		select {
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				logger.Info("Event stream detached", "reason", "subscription_closed")
				return
			}
			if err := wsWriteEvent(conn, ev); err != nil {
				logger.Debug("WebSocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.Done():
			return
		}
	}
}

// wsReadPump discards inbound messages; the stream is one-directional, but
// reading is required to notice the peer going away.
func wsReadPump(conn *websocket.Conn, sub *bus.Subscription) {
	defer func() {
		sub.Close()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func wsWriteEvent(conn *websocket.Conn, ev event.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
