package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ThrottlePolicy decides what happens to frames arriving inside the window.
type ThrottlePolicy string

const (
	// PolicyDrop discards frames until the window reopens.
	PolicyDrop ThrottlePolicy = "drop"
	// PolicyCoalesce holds the latest frame per entity and flushes them
	// together when the window reopens.
	PolicyCoalesce ThrottlePolicy = "coalesce"
)

// ThrottlerConfig configures a Throttler.
type ThrottlerConfig struct {
	Window      time.Duration // Minimum interval between deliveries
	HistorySize int           // Message buffer capacity
	Policy      ThrottlePolicy
}

// DefaultThrottlerConfig returns the dashboard defaults.
func DefaultThrottlerConfig() ThrottlerConfig {
	return ThrottlerConfig{
		Window:      200 * time.Millisecond,
		HistorySize: 100,
		Policy:      PolicyDrop,
	}
}

// ThrottlerStats contains runtime counters.
type ThrottlerStats struct {
	Received    int64     `json:"received"`
	Delivered   int64     `json:"delivered"`
	Dropped     int64     `json:"dropped"`
	Coalesced   int64     `json:"coalesced"`
	ParseErrors int64     `json:"parse_errors"`
	History     RingStats `json:"history"`
}

// Throttler parses inbound frames, rate limits their delivery and keeps the
// bounded history the Router projects from.
type Throttler struct {
	cfg     ThrottlerConfig
	logger  *zap.Logger
	limiter *rate.Limiter
	history *Ring[Event]
	now     func() time.Time

	mu         sync.Mutex
	pending    []Event
	pendingIdx map[string]int
	flushTimer *time.Timer
	lastSent   time.Time
	subs       map[int]chan Event
	nextSubID  int
	closed     bool

	received    int64
	delivered   int64
	dropped     int64
	coalesced   int64
	parseErrors int64
}

// NewThrottler creates a Throttler.
func NewThrottler(cfg ThrottlerConfig, logger *zap.Logger) *Throttler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistorySize < 1 {
		cfg.HistorySize = DefaultThrottlerConfig().HistorySize
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyDrop
	}

	return &Throttler{
		cfg:        cfg,
		logger:     logger,
		limiter:    rate.NewLimiter(windowLimit(cfg.Window), 1),
		history:    NewRing[Event](cfg.HistorySize),
		now:        time.Now,
		pendingIdx: make(map[string]int),
		subs:       make(map[int]chan Event),
	}
}

func windowLimit(window time.Duration) rate.Limit {
	if window <= 0 {
		return rate.Inf
	}
	return rate.Every(window)
}

// HandleFrame implements FrameHandler.
func (t *Throttler) HandleFrame(data []byte) {
	t.Accept(data, t.now())
}

// Accept processes one raw frame received at now. It reports whether the
// frame was delivered immediately.
func (t *Throttler) Accept(data []byte, now time.Time) bool {
	ev, err := ParseEvent(data)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.received++
	if err != nil {
		t.parseErrors++
		t.logger.Warn("failed to parse push frame",
			zap.Error(err),
			zap.Int("size", len(data)),
		)
		return false
	}
	if t.closed {
		return false
	}

	if t.limiter.AllowN(now, 1) {
		t.flushPendingLocked()
		t.deliverLocked(ev, now)
		return true
	}

	if t.cfg.Policy == PolicyCoalesce {
		t.holdLocked(ev)
		t.scheduleFlushLocked(now)
		return false
	}

	t.dropped++
	t.logger.Debug("frame throttled",
		zap.String("kind", string(ev.Kind)),
		zap.Int64("timestamp", ev.Timestamp),
	)
	return false
}

// holdLocked stores ev for the next flush, replacing an older held event for
// the same entity.
func (t *Throttler) holdLocked(ev Event) {
	id := ev.EntityID()
	if id == "" {
		t.pending = append(t.pending, ev)
		return
	}

	key := string(ev.Kind) + "/" + id
	if idx, ok := t.pendingIdx[key]; ok {
		t.coalesced++
		if ev.Timestamp >= t.pending[idx].Timestamp {
			t.pending[idx] = ev
		}
		return
	}
	t.pendingIdx[key] = len(t.pending)
	t.pending = append(t.pending, ev)
}

func (t *Throttler) scheduleFlushLocked(now time.Time) {
	if t.flushTimer != nil {
		return
	}
	wait := t.cfg.Window - now.Sub(t.lastSent)
	if wait < 0 {
		wait = 0
	}
	t.flushTimer = time.AfterFunc(wait, t.flush)
}

// flush delivers held events once the window reopens.
func (t *Throttler) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.flushTimer = nil
	if t.closed || len(t.pending) == 0 {
		return
	}

	now := t.now()
	if !t.limiter.AllowN(now, 1) {
		t.scheduleFlushLocked(now)
		return
	}
	t.lastSent = now
	t.flushPendingLocked()
}

func (t *Throttler) flushPendingLocked() {
	if len(t.pending) == 0 {
		return
	}
	for _, ev := range t.pending {
		t.publishLocked(ev)
	}
	t.pending = t.pending[:0]
	t.pendingIdx = make(map[string]int)
	if t.flushTimer != nil {
		t.flushTimer.Stop()
		t.flushTimer = nil
	}
}

func (t *Throttler) deliverLocked(ev Event, now time.Time) {
	t.lastSent = now
	t.publishLocked(ev)
}

func (t *Throttler) publishLocked(ev Event) {
	t.history.Append(ev)
	t.delivered++

	for id, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			t.logger.Debug("subscriber channel full, dropping event",
				zap.Int("subscriber", id),
				zap.String("kind", string(ev.Kind)),
			)
		}
	}
}

// Subscribe returns a channel receiving every delivered event. The cancel
// func unregisters and closes the channel.
func (t *Throttler) Subscribe(buffer int) (<-chan Event, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Event, buffer)
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextSubID
	t.nextSubID++
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
}

// History returns the delivered events, oldest first.
func (t *Throttler) History() []Event {
	return t.history.Snapshot()
}

// SetWindow changes the throttle window at runtime.
func (t *Throttler) SetWindow(window time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.Window = window
	t.limiter.SetLimit(windowLimit(window))
}

// Reset clears history and held events.
func (t *Throttler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history.Reset()
	t.pending = t.pending[:0]
	t.pendingIdx = make(map[string]int)
}

// Stats returns current counters.
func (t *Throttler) Stats() ThrottlerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ThrottlerStats{
		Received:    t.received,
		Delivered:   t.delivered,
		Dropped:     t.dropped,
		Coalesced:   t.coalesced,
		ParseErrors: t.parseErrors,
		History:     t.history.Stats(),
	}
}

// Close stops the flush timer and closes subscriber channels.
func (t *Throttler) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	if t.flushTimer != nil {
		t.flushTimer.Stop()
		t.flushTimer = nil
	}
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
