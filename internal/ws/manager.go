package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrNotConnected         = errors.New("not connected")
	ErrMaxReconnectAttempts = errors.New("maximum reconnection attempts reached")
	ErrManagerClosed        = errors.New("manager closed")
	errConnectionSuperseded = errors.New("connection superseded")
	errEmptyEndpoint        = errors.New("empty endpoint")
)

// FrameHandler receives every inbound text frame.
type FrameHandler interface {
	HandleFrame(data []byte)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(data []byte)

func (f FrameHandlerFunc) HandleFrame(data []byte) { f(data) }

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	MaxAttempts      int           // Automatic reconnect attempts before failing
	BaseDelay        time.Duration // Reconnect delay = BaseDelay × attempt
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration // Write deadline for sends
	PongWait         time.Duration // Max time without a pong before the read fails
	MaxMessageSize   int64

	// TokenSource, when set, supplies a bearer token for the handshake.
	TokenSource func() string
}

// DefaultManagerConfig returns the dashboard defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxAttempts:      5,
		BaseDelay:        1 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongWait:         60 * time.Second,
		MaxMessageSize:   512 * 1024,
	}
}

func (c ManagerConfig) policy() ReconnectPolicy {
	return ReconnectPolicy{MaxAttempts: c.MaxAttempts, BaseDelay: c.BaseDelay}
}

// StateListener observes state transitions. It runs outside the Manager's
// lock and may call Send.
type StateListener func(old, new State)

// Manager owns at most one WebSocket connection to a push endpoint and
// reconnects it after abnormal closes.
type Manager struct {
	cfg     ManagerConfig
	logger  *zap.Logger
	handler FrameHandler
	dialer  *websocket.Dialer

	mu        sync.Mutex
	state     State
	attempts  int
	lastErr   error
	endpoint  string
	ctx       context.Context
	stopCtx   func() bool
	conn      *websocket.Conn
	connDone  chan struct{}
	gen       uint64 // bumped on every teardown; stale goroutines compare against it
	timer     *time.Timer
	closed    bool
	listeners []StateListener

	queued     []stateChange // awaiting delivery by notify
	delivering bool

	writeMu sync.Mutex
}

type stateChange struct {
	old, new State
}

// NewManager creates a Manager delivering frames to handler.
func NewManager(cfg ManagerConfig, handler FrameHandler, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		handler = FrameHandlerFunc(func([]byte) {})
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultManagerConfig().PongWait
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultManagerConfig().WriteTimeout
	}

	return &Manager{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		state: StateDisconnected,
	}
}

// OnStateChange registers a listener for state transitions.
func (m *Manager) OnStateChange(l StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the last transport error, or nil after a successful open.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Attempts returns the current reconnect attempt counter.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Endpoint returns the endpoint of the last Connect call.
func (m *Manager) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

// Connect tears down any existing connection and dials endpoint. A dial
// failure is returned and also starts the reconnect schedule. Cancelling ctx
// disconnects.
func (m *Manager) Connect(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return errEmptyEndpoint
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.teardownLocked()
	m.endpoint = endpoint
	m.ctx = ctx
	m.lastErr = nil
	gen := m.gen

	m.stopCtx = context.AfterFunc(ctx, func() {
		m.disconnectGen(gen)
	})

	m.applyLocked(SignalConnect, gen)
	m.mu.Unlock()
	m.notify()

	return m.dial(gen)
}

// dial performs one handshake attempt for generation gen.
func (m *Manager) dial(gen uint64) error {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return errConnectionSuperseded
	}
	ctx, endpoint := m.ctx, m.endpoint
	attempt := m.attempts
	m.mu.Unlock()

	header := http.Header{}
	if m.cfg.TokenSource != nil {
		if token := m.cfg.TokenSource(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	m.logger.Debug("dialing push endpoint",
		zap.String("endpoint", endpoint),
		zap.Int("attempt", attempt),
	)

	conn, _, err := m.dialer.DialContext(ctx, endpoint, header)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return errConnectionSuperseded
	}

	if err != nil {
		m.lastErr = err
		m.logger.Warn("push connection failed",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		m.applyLocked(SignalLost, gen)
		m.mu.Unlock()
		m.notify()
		return fmt.Errorf("dialing %s: %w", endpoint, err)
	}

	done := make(chan struct{})
	m.conn = conn
	m.connDone = done
	m.lastErr = nil
	m.applyLocked(SignalOpened, gen)
	m.mu.Unlock()

	m.logger.Info("push connection established", zap.String("endpoint", endpoint))

	go m.readLoop(conn, gen)
	go m.pingLoop(conn, done)

	m.notify()
	return nil
}

// Send JSON-encodes v and writes it as a text frame. It returns
// ErrNotConnected unless the state is connected.
func (m *Manager) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		state := m.state
		m.mu.Unlock()
		m.logger.Debug("cannot send message", zap.String("state", string(state)))
		return ErrNotConnected
	}
	conn := m.conn
	m.mu.Unlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// Disconnect cancels any scheduled reconnect and closes the live socket.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.disconnectLocked()
	m.mu.Unlock()
	m.notify()
}

// Close disconnects and rejects further Connect calls.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.disconnectLocked()
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *Manager) disconnectGen(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.disconnectLocked()
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) disconnectLocked() {
	m.teardownLocked()
	if m.state == StateDisconnected {
		return
	}
	m.applyLocked(SignalDisconnect, m.gen)
}

// teardownLocked releases the timer, context watcher and socket. Every
// goroutine bound to the previous generation becomes a no-op.
func (m *Manager) teardownLocked() {
	m.gen++

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.stopCtx != nil {
		m.stopCtx()
		m.stopCtx = nil
	}
	if m.conn != nil {
		close(m.connDone)
		_ = m.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = m.conn.Close()
		m.conn = nil
		m.connDone = nil
	}
}

// applyLocked runs the state machine and performs its action. Changes are
// queued for notify in the order they happen.
func (m *Manager) applyLocked(sig Signal, gen uint64) {
	t := Next(m.state, sig, m.attempts, m.cfg.policy())

	if t.State != m.state {
		m.queued = append(m.queued, stateChange{old: m.state, new: t.State})
	}
	m.state = t.State
	m.attempts = t.Attempts

	switch t.Action {
	case ActionScheduleReconnect:
		m.logger.Info("scheduling reconnect",
			zap.Int("attempt", t.Attempts),
			zap.Duration("delay", t.Delay),
		)
		m.timer = time.AfterFunc(t.Delay, func() { m.retry(gen) })

	case ActionGiveUp:
		m.lastErr = ErrMaxReconnectAttempts
		m.logger.Error("giving up on push connection",
			zap.String("endpoint", m.endpoint),
			zap.Int("attempts", m.attempts),
		)
	}
}

// retry fires from the reconnect timer.
func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	if m.ctx != nil && m.ctx.Err() != nil {
		m.disconnectLocked()
		m.mu.Unlock()
		m.notify()
		return
	}
	t := Next(m.state, SignalRetry, m.attempts, m.cfg.policy())
	m.mu.Unlock()

	if t.Action == ActionDial {
		_ = m.dial(gen)
	}
}

// readLoop reads frames until the connection fails.
func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	if m.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(m.cfg.MaxMessageSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		// Any traffic proves liveness.
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		m.handler.HandleFrame(data)
	}
}

func (m *Manager) handleClose(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		// Torn down locally; not a failure.
		m.mu.Unlock()
		return
	}

	if m.conn != nil {
		close(m.connDone)
		_ = m.conn.Close()
		m.conn = nil
		m.connDone = nil
	}

	sig := SignalLost
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		sig = SignalClosedClean
		m.logger.Info("push connection closed by peer", zap.String("endpoint", m.endpoint))
	} else {
		m.lastErr = err
		m.logger.Warn("push connection lost",
			zap.String("endpoint", m.endpoint),
			zap.Error(err),
		)
	}

	m.applyLocked(sig, gen)
	m.mu.Unlock()
	m.notify()
}

// pingLoop keeps the connection alive until done is closed.
func (m *Manager) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker((m.cfg.PongWait * 9) / 10)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(m.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// notify delivers queued state changes. One goroutine delivers at a time;
// changes queued meanwhile, including by listeners, are picked up by that
// goroutine so listeners always see transitions in order.
func (m *Manager) notify() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true

	for len(m.queued) > 0 {
		changes := m.queued
		m.queued = nil
		listeners := make([]StateListener, len(m.listeners))
		copy(listeners, m.listeners)
		m.mu.Unlock()

		for _, c := range changes {
			m.logger.Debug("connection state changed",
				zap.String("from", string(c.old)),
				zap.String("to", string(c.new)),
			)
			for _, l := range listeners {
				l(c.old, c.new)
			}
		}

		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}
