package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

type recordingNotifier struct {
	mu       sync.Mutex
	lost     []int
	restored []time.Duration
}

func (r *recordingNotifier) SendConnectionLost(_ context.Context, _ string, attempts int, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, attempts)
	return nil
}

func (r *recordingNotifier) SendConnectionRestored(_ context.Context, _ string, downtime time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restored = append(r.restored, downtime)
	return nil
}

func TestConnectionAlerts_LostThenRestored(t *testing.T) {
	conn := &fakeConn{state: ws.StateFailed, attempts: 5, err: ws.ErrMaxReconnectAttempts}
	n := &recordingNotifier{}
	alerts := NewConnectionAlerts(conn, n, nil)

	start := time.Unix(1_700_000_000, 0)
	alerts.now = func() time.Time { return start }

	alerts.OnStateChange(ws.StateReconnecting, ws.StateFailed)
	alerts.Wait()

	alerts.now = func() time.Time { return start.Add(90 * time.Second) }
	alerts.OnStateChange(ws.StateConnecting, ws.StateConnected)
	alerts.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	require.Equal(t, []int{5}, n.lost)
	require.Len(t, n.restored, 1)
	assert.Equal(t, 90*time.Second, n.restored[0])
}

func TestConnectionAlerts_NormalConnectIsQuiet(t *testing.T) {
	n := &recordingNotifier{}
	alerts := NewConnectionAlerts(&fakeConn{}, n, nil)

	alerts.OnStateChange(ws.StateConnecting, ws.StateConnected)
	alerts.OnStateChange(ws.StateConnected, ws.StateReconnecting)
	alerts.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Empty(t, n.lost)
	assert.Empty(t, n.restored)
}
