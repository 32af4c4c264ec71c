package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gridkeep/internal/auth"
	"gridkeep/internal/game"
	"gridkeep/internal/logging"
	"gridkeep/internal/protocol"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendQueueSize  = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if IsAllowedOrigin(origin) {
			return true
		}
		logging.L().Warnf("⚠️ WebSocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// wsClient is one upgraded connection. It satisfies the room's client
// contract: Send never blocks the room timeline, Close defers the actual
// socket teardown to the write pump so queued notices flush first.
type wsClient struct {
	conn      *websocket.Conn
	sessionID string

	sendCh chan []byte
	done   chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:      conn,
		sessionID: uuid.NewString(),
		sendCh:    make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
}

func (c *wsClient) SessionID() string { return c.sessionID }

// Send queues one outbound message. A full queue drops the message rather
// than stalling the room.
func (c *wsClient) Send(msgType string, payload any) {
	b, err := json.Marshal(protocol.Envelope{Type: msgType, Data: mustRaw(payload)})
	if err != nil {
		return
	}
	select {
	case c.sendCh <- b:
	default:
		IncrementWSDropped()
	}
}

func mustRaw(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return b
}

// Close signals the write pump to flush pending messages and send the close
// frame. Idempotent; safe from any goroutine.
func (c *wsClient) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// writePump owns all writes to the socket. Exactly one per connection.
func (c *wsClient) writePump() {
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			// Flush whatever is queued, then say goodbye properly.
			for {
				select {
				case msg := <-c.sendCh:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					code := c.closeCode
					if code == 0 {
						code = websocket.CloseNormalClosure
					}
					c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(code, c.closeReason),
						time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

// WSGateway upgrades HTTP requests and bridges connections into rooms, with
// DoS protection on total and per-IP connection counts.
type WSGateway struct {
	manager   *game.RoomManager
	wsLimiter *WebSocketRateLimiter
	active    atomic.Int64
}

// NewWSGateway creates a gateway over the room registry.
func NewWSGateway(manager *game.RoomManager) *WSGateway {
	return &WSGateway{
		manager:   manager,
		wsLimiter: NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
	}
}

// ActiveConnections returns the number of live WebSocket connections.
func (g *WSGateway) ActiveConnections() int {
	return int(g.active.Load())
}

// HandleWebSocket is the /ws endpoint. Credentials ride in the query string:
// game (room id), token (optional identity token), secret (room secret),
// name (guest display name).
func (g *WSGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if int(g.active.Load()) >= MaxWSConnectionsTotal {
		logging.L().Warnf("⚠️ WebSocket connection rejected: total limit reached")
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !g.wsLimiter.Allow(ip) {
		logging.L().Warnf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Warnf("WebSocket upgrade error: %v", err)
		g.wsLimiter.Release(ip)
		return
	}

	q := r.URL.Query()
	gameID := q.Get("game")
	if gameID == "" {
		gameID = "lobby"
	}

	client := newWSClient(conn)
	go client.writePump()

	room, err := g.manager.GetOrCreate(game.RoomOptions{GameID: gameID})
	if err != nil {
		client.Send(protocol.TypeModal, protocol.ModalMsg{Title: "Unavailable", Body: "The room could not be opened."})
		client.Close(protocol.CloseAuthRejected, "room unavailable")
		g.wsLimiter.Release(ip)
		return
	}

	identity, err := room.Authenticate(auth.Credentials{
		Token:     q.Get("token"),
		Secret:    q.Get("secret"),
		Name:      q.Get("name"),
		SessionID: client.SessionID(),
	})
	if err != nil {
		logging.L().Infof("🔒 Join refused for room %s: %v", gameID, err)
		RecordConnectionRejected("auth")
		client.Send(protocol.TypeModal, protocol.ModalMsg{Title: "Join refused", Body: err.Error()})
		client.Close(protocol.CloseAuthRejected, "authentication failed")
		g.wsLimiter.Release(ip)
		return
	}

	room.Join(client, identity)
	UpdateWSConnections(int(g.active.Add(1)))

	go g.readLoop(client, room, ip)
}

// readLoop owns all reads from the socket. A clean close frame counts as a
// consented leave; anything else starts the room's reconnection grace window.
func (g *WSGateway) readLoop(c *wsClient, room *game.Room, ip string) {
	defer func() {
		g.wsLimiter.Release(ip)
		UpdateWSConnections(int(g.active.Add(-1)))
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			consented := websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway)
			room.Leave(c, consented)
			return
		}
		room.HandleMessage(c, msg)
	}
}
