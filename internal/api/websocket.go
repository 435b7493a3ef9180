package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"lanternfall/internal/protocol"
	"lanternfall/internal/world"
)

// Application close codes sent during the handshake.
const (
	CloseInvalidIdentity = 4001
	CloseUnknownRealm    = 4002
)

const (
	maxFrameBytes = 4096
	writeWait     = 10 * time.Second
	pingWait      = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if IsAllowedOrigin(origin) {
			return true
		}
		log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// WSHandler accepts WebSocket connections and binds each one to a world
// session. Inbound frames are throttled per connection; outbound frames are
// pumped from the session's outbox.
type WSHandler struct {
	world       *world.World
	connLimiter *ConnLimiter

	// Per-connection inbound throttle.
	inboundPerSecond float64
	inboundBurst     int
}

// NewWSHandler creates the WebSocket entry point.
func NewWSHandler(w *world.World, maxConnsPerIP int, perSecond float64, burst int) *WSHandler {
	return &WSHandler{
		world:            w,
		connLimiter:      NewConnLimiter(maxConnsPerIP),
		inboundPerSecond: perSecond,
		inboundBurst:     burst,
	}
}

// ConnLimiter exposes the per-IP limiter for the status endpoint.
func (h *WSHandler) ConnLimiter() *ConnLimiter {
	return h.connLimiter
}

// HandleWS upgrades the request, performs the session handshake, and runs
// the read loop until the connection dies.
func (h *WSHandler) HandleWS(rw http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if !h.connLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ip_limit")
		http.Error(rw, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.connLimiter.Release(ip)
		return
	}

	identity := r.URL.Query().Get("id")
	realm := r.URL.Query().Get("realm")
	connID := uuid.NewString()

	session, err := h.world.OpenSession(connID, identity, realm)
	if err != nil {
		h.rejectHandshake(conn, err)
		h.connLimiter.Release(ip)
		return
	}

	session.Probe = func() {
		conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
	}
	session.Hangup = func() {
		conn.Close()
	}

	go h.writePump(conn, session)
	h.readLoop(conn, connID, ip)
}

// rejectHandshake maps a session-open failure to a close frame. The codes
// in the 4000 range are part of the client contract.
func (h *WSHandler) rejectHandshake(conn *websocket.Conn, err error) {
	code := websocket.CloseInternalServerErr
	reason := "internal error"

	switch {
	case errors.Is(err, world.ErrInvalidIdentity):
		code, reason = CloseInvalidIdentity, "invalid identity"
		RecordConnectionRejected("identity")
	case errors.Is(err, world.ErrUnknownRealm):
		code, reason = CloseUnknownRealm, "unknown realm"
		RecordConnectionRejected("realm")
	case errors.Is(err, world.ErrServerFull):
		code, reason = websocket.CloseTryAgainLater, "server full"
		RecordConnectionRejected("capacity")
	}

	deadline := time.Now().Add(writeWait)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}

// writePump drains the session outbox onto the wire. It exits when the
// outbox closes (session torn down) or a write fails.
func (h *WSHandler) writePump(conn *websocket.Conn, s *world.Session) {
	defer conn.Close()

	for env := range s.Outbox() {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(env); err != nil {
			return
		}
		RecordOutboundFrame()
	}

	// Outbox closed: the world ended the session. Say goodbye properly.
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// readLoop consumes inbound frames until the connection dies, throttling
// per connection. Frames over the limit are dropped, not fatal.
func (h *WSHandler) readLoop(conn *websocket.Conn, connID, ip string) {
	defer func() {
		h.world.CloseSession(connID)
		h.connLimiter.Release(ip)
		conn.Close()
	}()

	conn.SetReadLimit(maxFrameBytes)
	conn.SetPongHandler(func(string) error {
		h.world.Touch(connID)
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(h.inboundPerSecond), h.inboundBurst)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !limiter.Allow() {
			RecordInboundFrame("throttled")
			continue
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			RecordInboundFrame("malformed")
			continue
		}
		RecordInboundFrame("handled")
		h.world.HandleMessage(connID, env)
	}
}
