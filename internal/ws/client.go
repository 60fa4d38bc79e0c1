package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mesapos/api/internal/auth"
	"github.com/mesapos/api/internal/enum"
)

// Connection timing. A dashboard that misses two pings in a row is dropped.
const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingEvery    = idleTimeout * 9 / 10

	// Dashboards only send control frames.
	maxInbound = 512

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is irrelevant: the token is checked before upgrading.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one dashboard connection subscribed to a single room.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	branch string
	send   chan []byte
}

// discard drains inbound frames so pongs and close frames are processed,
// and unregisters the client once the peer goes away.
func (c *Client) discard() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInbound)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idleTimeout)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("branch", c.branch).Msg("ws: client gone")
			}
			return
		}
	}
}

// deliver writes each queued event as its own text frame and pings the
// peer while idle. It returns when the hub closes send or a write fails.
func (c *Client) deliver() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case event, open := <-c.send:
			if !open {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := write(websocket.TextMessage, event); err != nil {
				log.Debug().Err(err).Str("branch", c.branch).Msg("ws: write failed")
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// roomFor picks the room a token subscribes to: admins follow every branch,
// everyone else their own.
func roomFor(claims *auth.Claims) string {
	if claims.Role == enum.RoleAdmin {
		return AllBranches
	}
	return claims.Branch
}

// ServeWS upgrades GET /ws?token=JWT into a live event feed for the
// caller's room.
func ServeWS(hub *Hub, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ValidateToken(jwtSecret, token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("ws: upgrade failed")
			return
		}

		client := &Client{hub: hub, conn: conn, branch: roomFor(claims), send: make(chan []byte, sendBuffer)}
		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.deliver()
		go client.discard()
	}
}
