package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/notify"
	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

const alertTimeout = 30 * time.Second

// ConnectionAlerts sends a notification when the push connection gives up
// and another when it comes back.
type ConnectionAlerts struct {
	conn     Connection
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	failedAt time.Time
	wg       sync.WaitGroup
}

func NewConnectionAlerts(conn Connection, notifier notify.Notifier, logger *zap.Logger) *ConnectionAlerts {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionAlerts{
		conn:     conn,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// OnStateChange is a ws.StateListener. Notifications are sent in the
// background so the Manager is never blocked on the network.
func (a *ConnectionAlerts) OnStateChange(_, new ws.State) {
	switch new {
	case ws.StateFailed:
		a.mu.Lock()
		a.failedAt = a.now()
		a.mu.Unlock()

		endpoint, attempts, err := a.conn.Endpoint(), a.conn.Attempts(), a.conn.Err()
		a.dispatch(func(ctx context.Context) error {
			return a.notifier.SendConnectionLost(ctx, endpoint, attempts, err)
		})

	case ws.StateConnected:
		a.mu.Lock()
		failedAt := a.failedAt
		a.failedAt = time.Time{}
		a.mu.Unlock()
		if failedAt.IsZero() {
			return
		}

		endpoint, downtime := a.conn.Endpoint(), a.now().Sub(failedAt)
		a.dispatch(func(ctx context.Context) error {
			return a.notifier.SendConnectionRestored(ctx, endpoint, downtime)
		})
	}
}

func (a *ConnectionAlerts) dispatch(send func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			a.logger.Warn("connection alert not delivered", zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (a *ConnectionAlerts) Wait() {
	a.wg.Wait()
}
