package pushsim

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Send buffer size per client.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client represents a WebSocket client connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	connID string
	groups map[string]bool
	logger *zap.Logger
}

// connectedFrame is the first frame every client receives.
type connectedFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp"`
}

// inbound is the union of frames a client may send.
type inbound struct {
	Type           ws.Kind `json:"type"`
	OrganizationID string  `json:"organizationId"`
	ConvoyID       string  `json:"convoyId"`
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.token != "" && bearerToken(r) != h.token {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		connID: uuid.NewString(),
		groups: make(map[string]bool),
		logger: h.logger,
	}

	hello, _ := json.Marshal(connectedFrame{
		Type:         "connected",
		ConnectionID: client.connID,
		Timestamp:    time.Now().UnixMilli(),
	})
	client.send <- hello

	if !h.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.scheduleUnregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, send close message
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes join and leave frames.
func (c *Client) handleMessage(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("failed to parse client frame",
			zap.String("connID", c.connID),
			zap.Error(err),
		)
		return
	}

	switch msg.Type {
	case ws.KindJoinOrganization:
		if msg.OrganizationID == "" {
			c.logger.Debug("join without organization id", zap.String("connID", c.connID))
			return
		}
		c.hub.JoinGroup(c, OrgGroup(msg.OrganizationID))

	case ws.KindJoinConvoy:
		if msg.ConvoyID == "" {
			c.logger.Debug("join without convoy id", zap.String("connID", c.connID))
			return
		}
		c.hub.JoinGroup(c, ConvoyGroup(msg.ConvoyID))

	case ws.KindLeaveConvoy:
		if msg.ConvoyID == "" {
			return
		}
		c.hub.LeaveGroup(c, ConvoyGroup(msg.ConvoyID))

	default:
		c.logger.Debug("ignoring client frame",
			zap.String("connID", c.connID),
			zap.String("type", string(msg.Type)),
		)
	}
}
