package ws

import (
	"context"

	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

// Connector is the part of Manager the Gate drives.
type Connector interface {
	Connect(ctx context.Context, endpoint string) error
	Disconnect()
	Send(v any) error
	OnStateChange(l StateListener)
}

// SessionSource is the part of session.Session the Gate watches.
type SessionSource interface {
	User() (model.User, bool)
	Changes() (<-chan struct{}, func())
}

// Gate keeps the push connection open exactly while a session is
// authenticated and joins the user's organization channel after every
// (re)connect.
type Gate struct {
	conn     Connector
	session  SessionSource
	endpoint string
	logger   *zap.Logger

	// Only touched from Run's goroutine.
	active bool
	userID string
}

// NewGate wires a Gate to conn. It registers the join listener immediately.
func NewGate(conn Connector, session SessionSource, endpoint string, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{
		conn:     conn,
		session:  session,
		endpoint: endpoint,
		logger:   logger,
	}
	conn.OnStateChange(g.onStateChange)
	return g
}

// Run follows session changes until ctx is done, then disconnects.
func (g *Gate) Run(ctx context.Context) error {
	changes, cancel := g.session.Changes()
	defer cancel()

	g.sync(ctx)

	for {
		select {
		case <-ctx.Done():
			g.conn.Disconnect()
			g.active = false
			return ctx.Err()
		case <-changes:
			g.sync(ctx)
		}
	}
}

// sync reconciles the connection with the current session state.
func (g *Gate) sync(ctx context.Context) {
	user, authenticated := g.session.User()

	switch {
	case authenticated && (!g.active || user.ID != g.userID):
		g.active = true
		g.userID = user.ID
		g.logger.Info("session authenticated, connecting push channel",
			zap.String("endpoint", g.endpoint),
			zap.String("user", user.ID),
		)
		if err := g.conn.Connect(ctx, g.endpoint); err != nil {
			// The Manager keeps retrying on its own schedule.
			g.logger.Warn("initial push connection failed", zap.Error(err))
		}

	case !authenticated && g.active:
		g.active = false
		g.userID = ""
		g.logger.Info("session ended, disconnecting push channel")
		g.conn.Disconnect()
	}
}

func (g *Gate) onStateChange(_, new State) {
	if new != StateConnected {
		return
	}

	user, ok := g.session.User()
	if !ok || user.OrganizationID == "" {
		g.logger.Warn("connected without an organization to join")
		return
	}

	if err := g.conn.Send(NewJoinOrganization(user.OrganizationID)); err != nil {
		g.logger.Warn("failed to join organization channel",
			zap.String("organization", user.OrganizationID),
			zap.Error(err),
		)
		return
	}
	g.logger.Debug("joined organization channel", zap.String("organization", user.OrganizationID))
}
