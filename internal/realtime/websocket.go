package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"adpulse/pkg/platform/privacy"
	"adpulse/pkg/requestcontext"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second

	maxClientMessage = 512
)

// WSHandler serves the real-time channel. Each connection gets one hub
// subscriber; frames are the JSON encoding of Message.
type WSHandler struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
}

type WSOption func(*WSHandler)

func WithWriteTimeout(d time.Duration) WSOption {
	return func(h *WSHandler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

func WithPingInterval(d time.Duration) WSOption {
	return func(h *WSHandler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithAllowedOrigin restricts the Origin header. "*" or "" allows any.
func WithAllowedOrigin(origin string) WSOption {
	return func(h *WSHandler) {
		if origin == "" || origin == "*" {
			h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || o == origin
		}
	}
}

func WithWSLogger(logger *slog.Logger) WSOption {
	return func(h *WSHandler) {
		h.logger = logger
	}
}

func NewWSHandler(hub *Hub, opts ...WSOption) *WSHandler {
	h := &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: DefaultWriteTimeout,
		pingInterval: DefaultPingInterval,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	sub := h.hub.Subscribe(KindWebSocket)
	ip := privacy.AnonymizeIP(requestcontext.ClientIP(r.Context()))
	h.logger.InfoContext(r.Context(), "realtime client connected", "ip_prefix", ip)

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)

	h.logger.InfoContext(r.Context(), "realtime client disconnected",
		"ip_prefix", ip,
		"dropped", sub.Dropped(),
	)
}

// readPump discards client frames and closes done once the peer goes away
// or stops answering pings.
func (h *WSHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	pongWait := 2 * h.pingInterval
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on conn.
func (h *WSHandler) writePump(conn *websocket.Conn, sub *Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
