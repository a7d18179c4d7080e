package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/api"
	"github.com/dgnsrekt/cargoviz-realtime/internal/config"
	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
	"github.com/dgnsrekt/cargoviz-realtime/internal/session"
)

// app is the session and REST client shared by every subcommand.
type app struct {
	session *session.Session
	client  api.Client
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sess := session.New(session.NewFileStore(cfg.Session.File), logger)
	if err := sess.Bootstrap(); err != nil {
		logger.Warn("stored session discarded", zap.Error(err))
	}

	var client api.Client
	switch cfg.API.Backend {
	case config.BackendMock:
		logger.Info("using in-memory mock backend")
		client = api.NewMockClient(logger)
	default:
		client = api.NewClient(
			cfg.API.BaseURL,
			sess,
			cfg.API.RatePerSecond,
			cfg.API.Timeout(),
			cfg.API.RetryDelay(),
			cfg.API.RetryCount,
			logger,
		)
	}

	return &app{session: sess, client: client}, nil
}

// requireUser returns the logged-in user or an error telling how to log in.
func (a *app) requireUser() (model.User, error) {
	user, ok := a.session.User()
	if !ok {
		return model.User{}, fmt.Errorf("not logged in; run `cargoviz login` first")
	}
	return user, nil
}
