package session

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

// Phase is the session lifecycle position.
type Phase string

const (
	PhaseInit    Phase = "init"    // not yet bootstrapped from the store
	PhaseActive  Phase = "active"  // token and user present
	PhaseCleared Phase = "cleared" // logged out, expired or never logged in
)

var ErrInvalidSession = errors.New("token and user id are required")

// Session holds the authenticated token and user. It is the single source
// of auth state for the request layer and the Session Gate.
type Session struct {
	store  Store
	logger *zap.Logger

	mu    sync.RWMutex
	phase Phase
	token string
	user  model.User

	subsMu sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// New creates a session in the init phase. Call Bootstrap to restore a
// persisted login.
func New(store Store, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{
		store:  store,
		logger: logger,
		phase:  PhaseInit,
		subs:   make(map[int]chan struct{}),
	}
}

// Bootstrap restores the session from the store. Corrupt stored data is
// removed and the session ends up cleared.
func (s *Session) Bootstrap() error {
	stored, err := s.store.Load()
	if err != nil {
		s.logger.Warn("discarding unreadable session", zap.Error(err))
		if clearErr := s.store.Clear(); clearErr != nil {
			s.logger.Error("failed to clear session store", zap.Error(clearErr))
		}
		s.set(PhaseCleared, "", model.User{})
		return err
	}

	if stored == nil || stored.Token == "" || stored.User.ID == "" {
		s.set(PhaseCleared, "", model.User{})
		return nil
	}

	s.logger.Debug("session restored", zap.String("user", stored.User.ID))
	s.set(PhaseActive, stored.Token, stored.User)
	return nil
}

// Begin records a successful login and persists it.
func (s *Session) Begin(token string, user model.User) error {
	if token == "" || user.ID == "" {
		return ErrInvalidSession
	}
	if err := s.store.Save(Persisted{Token: token, User: user}); err != nil {
		return err
	}
	s.logger.Info("session started",
		zap.String("user", user.ID),
		zap.String("organization", user.OrganizationID),
	)
	s.set(PhaseActive, token, user)
	return nil
}

// Clear ends the session and removes it from the store.
func (s *Session) Clear() {
	if err := s.store.Clear(); err != nil {
		s.logger.Error("failed to clear session store", zap.Error(err))
	}

	s.mu.RLock()
	wasActive := s.phase == PhaseActive
	s.mu.RUnlock()

	if wasActive {
		s.logger.Info("session cleared")
	}
	s.set(PhaseCleared, "", model.User{})
}

func (s *Session) set(phase Phase, token string, user model.User) {
	s.mu.Lock()
	changed := s.phase != phase || s.token != token || s.user.ID != user.ID
	s.phase = phase
	s.token = token
	s.user = user
	s.mu.Unlock()

	if changed {
		s.broadcast()
	}
}

// Phase returns the lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Authenticated reports whether a token and user are present.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase == PhaseActive
}

// Token returns the bearer token, or "" when not authenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the logged-in user.
func (s *Session) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.phase == PhaseActive
}

// Changes returns a channel signalled after every session change. Signals
// coalesce: a receiver reads the current state rather than counting them.
func (s *Session) Changes() (<-chan struct{}, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	ch := make(chan struct{}, 1)
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			delete(s.subs, id)
		})
	}
}

func (s *Session) broadcast() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending.
		}
	}
}
