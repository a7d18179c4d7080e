// Package pushsim is a development push service. It accepts the same
// WebSocket handshake and join frames as the production service and streams
// synthetic yard events to joined organizations and convoys.
package pushsim

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	orgGroupPrefix    = "org:"
	convoyGroupPrefix = "convoy:"
)

func OrgGroup(orgID string) string       { return orgGroupPrefix + orgID }
func ConvoyGroup(convoyID string) string { return convoyGroupPrefix + convoyID }

// Hub manages WebSocket connections and group subscriptions.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool // group -> clients
	unregister chan *Client
	done       chan struct{}
	token      string
	stopped    bool
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub. A non-empty token must be presented by every
// connecting client.
func NewHub(token string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		token:      token,
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug("client unregistered", zap.String("connID", client.connID))
		}
	}
}

// add registers a client synchronously so its first join frame always finds
// it. It reports false once the hub has shut down.
func (h *Hub) add(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	h.clients[client] = true
	h.logger.Debug("client registered", zap.String("connID", client.connID))
	return true
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for group := range client.groups {
		if clients, ok := h.groups[group]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.groups, group)
			}
		}
	}
	close(client.send)
}

// shutdown closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.groups = make(map[string]map[*Client]bool)
}

// scheduleUnregister hands a client back to Run without blocking the caller.
func (h *Hub) scheduleUnregister(c *Client) {
	go func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
}

// JoinGroup adds a client to a group.
func (h *Hub) JoinGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][client] = true
	client.groups[group] = true

	h.logger.Debug("client joined group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
}

// LeaveGroup removes a client from a group.
func (h *Hub) LeaveGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.groups[group]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, group)
		}
	}
	delete(client.groups, group)

	h.logger.Debug("client left group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
}

// ActiveGroups returns all groups with at least one subscriber.
func (h *Hub) ActiveGroups() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var groups []string
	for group, clients := range h.groups {
		if len(clients) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a frame to every client in a group. A client whose send
// buffer is full is disconnected.
func (h *Hub) Broadcast(group string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.groups[group] {
		select {
		case client.send <- payload:
		default:
			h.scheduleUnregister(client)
		}
	}
}

// groupID splits a group name into its prefix and entity id.
func groupID(group, prefix string) (string, bool) {
	if !strings.HasPrefix(group, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(group, prefix)
	return id, id != ""
}
