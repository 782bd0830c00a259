// Package push bridges the delivery broker to live WebSocket connections.
// The connection never holds a database handle; it only drains its broker
// subscription.
package push

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/notifar/notifar/internal/authz"
	"github.com/notifar/notifar/internal/broker"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Handler struct {
	broker   *broker.Broker
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(deliveryBroker *broker.Broker, logger zerolog.Logger) *Handler {
	return &Handler{
		broker: deliveryBroker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "push_handler").Logger(),
	}
}

// Serve upgrades the request and streams the authenticated user's delivery
// events until the peer disconnects or a write fails.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	username, ok := authz.UsernameFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("username", username).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := h.broker.Subscribe(ctx, username)
	if err != nil {
		h.logger.Error().Err(err).Str("username", username).Msg("broker subscribe failed")
		conn.Close()
		return
	}

	h.logger.Debug().Str("username", username).Msg("push listener connected")
	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, events, username)
}

// readPump discards inbound frames; its job is pong handling and noticing
// the peer going away.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, events <-chan broker.Event, username string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		h.logger.Debug().Str("username", username).Msg("push listener disconnected")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Warn().Err(err).Str("username", username).Msg("push write failed, dropping listener")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
