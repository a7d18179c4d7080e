package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
	"github.com/dgnsrekt/cargoviz-realtime/internal/session"
)

type fakeConnector struct {
	mu          sync.Mutex
	connects    []string
	disconnects int
	sent        []any
	listener    StateListener
}

func (f *fakeConnector) Connect(_ context.Context, endpoint string) error {
	f.mu.Lock()
	f.connects = append(f.connects, endpoint)
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l(StateConnecting, StateConnected)
	}
	return nil
}

func (f *fakeConnector) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeConnector) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeConnector) OnStateChange(l StateListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *fakeConnector) counts() (connects, disconnects, sent int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connects), f.disconnects, len(f.sent)
}

var testUser = model.User{ID: "user-1", Name: "John Doe", Email: "john@example.com", Role: "admin", OrganizationID: "org-1"}

func startGate(t *testing.T, conn Connector, s *session.Session) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGate(conn, s, "wss://push.example/ws", zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	return cancel, done
}

func TestGate_ConnectsOnLoginAndJoinsOnce(t *testing.T) {
	s := session.New(nil, nil)
	require.NoError(t, s.Bootstrap())

	fc := &fakeConnector{}
	cancel, done := startGate(t, fc, s)
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(20 * time.Millisecond)
	connects, _, _ := fc.counts()
	assert.Equal(t, 0, connects, "no connection without a session")

	require.NoError(t, s.Begin("token-1", testUser))

	assert.Eventually(t, func() bool {
		c, _, sent := fc.counts()
		return c == 1 && sent == 1
	}, time.Second, 5*time.Millisecond)

	fc.mu.Lock()
	join, ok := fc.sent[0].(JoinOrganization)
	fc.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, KindJoinOrganization, join.Type)
	assert.Equal(t, "org-1", join.OrganizationID)
}

func TestGate_DisconnectsOnClear(t *testing.T) {
	s := session.New(nil, nil)
	require.NoError(t, s.Begin("token-1", testUser))

	fc := &fakeConnector{}
	cancel, done := startGate(t, fc, s)
	defer func() {
		cancel()
		<-done
	}()

	assert.Eventually(t, func() bool {
		c, _, _ := fc.counts()
		return c == 1
	}, time.Second, 5*time.Millisecond)

	s.Clear()

	assert.Eventually(t, func() bool {
		_, d, _ := fc.counts()
		return d == 1
	}, time.Second, 5*time.Millisecond)
}

func TestGate_ReconnectsWhenUserChanges(t *testing.T) {
	s := session.New(nil, nil)
	require.NoError(t, s.Begin("token-1", testUser))

	fc := &fakeConnector{}
	cancel, done := startGate(t, fc, s)
	defer func() {
		cancel()
		<-done
	}()

	assert.Eventually(t, func() bool {
		c, _, _ := fc.counts()
		return c == 1
	}, time.Second, 5*time.Millisecond)

	other := testUser
	other.ID = "user-2"
	other.OrganizationID = "org-2"
	require.NoError(t, s.Begin("token-2", other))

	assert.Eventually(t, func() bool {
		c, _, _ := fc.counts()
		return c == 2
	}, time.Second, 5*time.Millisecond)
}

func TestGate_RunStopsOnCancel(t *testing.T) {
	s := session.New(nil, nil)
	require.NoError(t, s.Begin("token-1", testUser))

	fc := &fakeConnector{}
	cancel, done := startGate(t, fc, s)

	assert.Eventually(t, func() bool {
		c, _, _ := fc.counts()
		return c == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	_, d, _ := fc.counts()
	assert.Equal(t, 1, d)
}

func TestGate_WithManagerSendsJoinAfterEveryOpen(t *testing.T) {
	frames := make(chan map[string]any, 4)

	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if json.Unmarshal(msg, &m) == nil {
				frames <- m
			}
		}
	})
	defer server.Close()

	s := session.New(nil, nil)
	require.NoError(t, s.Begin("token-1", testUser))

	cfg := testManagerConfig()
	cfg.TokenSource = s.Token
	m := NewManager(cfg, nil, nil)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	g := NewGate(m, s, wsURL(server), nil)
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case f := <-frames:
		assert.Equal(t, "join_organization", f["type"])
		assert.Equal(t, "org-1", f["organizationId"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for join frame")
	}

	select {
	case f := <-frames:
		t.Fatalf("unexpected second frame: %v", f)
	case <-time.After(100 * time.Millisecond):
	}
}
