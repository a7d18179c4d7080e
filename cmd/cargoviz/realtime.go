package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/config"
	"github.com/dgnsrekt/cargoviz-realtime/internal/dashboard"
	"github.com/dgnsrekt/cargoviz-realtime/internal/notify"
	"github.com/dgnsrekt/cargoviz-realtime/internal/recording"
	"github.com/dgnsrekt/cargoviz-realtime/internal/server"
	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

// realtime is the push pipeline: Manager -> Throttler -> Router, with the
// Gate driving the connection from the session.
type realtime struct {
	throttler *ws.Throttler
	manager   *ws.Manager
	gate      *ws.Gate
	alerts    *dashboard.ConnectionAlerts
	service   *dashboard.Service
}

func newRealtime(a *app, cfg *config.Config, logger *zap.Logger, convoyIDs []string) *realtime {
	throttler := ws.NewThrottler(ws.ThrottlerConfig{
		Window:      cfg.Realtime.ThrottleWindow(),
		HistorySize: cfg.Realtime.HistorySize,
		Policy:      ws.ThrottlePolicy(cfg.Realtime.ThrottlePolicy),
	}, logger.Named("throttle"))

	mcfg := ws.DefaultManagerConfig()
	mcfg.MaxAttempts = cfg.Realtime.MaxReconnectAttempts
	mcfg.BaseDelay = cfg.Realtime.ReconnectDelay()
	mcfg.PongWait = cfg.Realtime.PongWait()
	mcfg.TokenSource = a.session.Token
	manager := ws.NewManager(mcfg, throttler, logger.Named("ws"))

	gate := ws.NewGate(manager, a.session, cfg.Realtime.Endpoint, logger.Named("gate"))

	if len(convoyIDs) > 0 {
		manager.OnStateChange(func(_, new ws.State) {
			if new != ws.StateConnected {
				return
			}
			for _, id := range convoyIDs {
				if err := manager.Send(ws.NewJoinConvoy(id)); err != nil {
					logger.Warn("failed to join convoy", zap.String("convoy", id), zap.Error(err))
				}
			}
		})
	}

	alerts := dashboard.NewConnectionAlerts(manager, notify.New(&cfg.Notify, logger), logger)
	manager.OnStateChange(alerts.OnStateChange)

	svc := dashboard.NewService(a.client, a.session, ws.NewRouter(throttler), manager, logger.Named("dashboard"))

	return &realtime{
		throttler: throttler,
		manager:   manager,
		gate:      gate,
		alerts:    alerts,
		service:   svc,
	}
}

func (rt *realtime) close() {
	_ = rt.manager.Close()
	rt.throttler.Close()
	rt.alerts.Wait()
}

func watchCmd() *cobra.Command {
	var (
		convoys []string
		record  string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream push events for your organization to stdout",
		Long: `Connect the push channel for the logged-in organization and print every
delivered event as one JSON line. Events pass through the same throttle the
dashboard uses.

Examples:
  cargoviz watch
  cargoviz watch --convoy convoy-1

  # Record delivered frames for replay with cmd/pushsim (PUSHSIM_REPLAY)
  cargoviz watch --record events.jsonl.zst`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			if _, err := a.requireUser(); err != nil {
				return err
			}

			rt := newRealtime(a, cfg, logger, convoys)
			defer rt.close()

			events, unsubscribe := rt.throttler.Subscribe(64)
			defer unsubscribe()

			var rec *recording.Recorder
			if record != "" {
				rec, err = recording.NewRecorder(record)
				if err != nil {
					return err
				}
				defer func() {
					if err := rec.Close(); err != nil {
						logger.Warn("failed to close recording", zap.Error(err))
					}
					logger.Info("recording saved", zap.String("file", record), zap.Int("frames", rec.Count()))
				}()
			}

			rt.manager.OnStateChange(func(old, new ws.State) {
				logger.Info("connection", zap.String("from", string(old)), zap.String("to", string(new)))
			})

			gateErr := make(chan error, 1)
			go func() { gateErr <- rt.gate.Run(ctx) }()

			for {
				select {
				case <-ctx.Done():
					<-gateErr
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					line, err := ev.MarshalJSON()
					if err != nil {
						continue
					}
					fmt.Println(string(line))
					if rec != nil {
						if err := rec.Write(ev); err != nil {
							logger.Warn("failed to record frame", zap.Error(err))
						}
					}
				}
			}
		},
	}

	cmd.Flags().StringSliceVar(&convoys, "convoy", nil, "also join these convoy channels")
	cmd.Flags().StringVar(&record, "record", "", "also write delivered frames to this file (.zst compresses)")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		addr    string
		convoys []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reconciled dashboard views over a local HTTP API",
		Long: `Run the realtime pipeline and expose the reconciled cargo and area views,
connection status and event projections on a local HTTP API.

When a config file is in use it is watched; throttle window and log level
changes apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			if _, err := a.requireUser(); err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			rt := newRealtime(a, cfg, logger, convoys)
			defer rt.close()

			if err := rt.service.Refresh(ctx); err != nil {
				return fmt.Errorf("loading dashboard: %w", err)
			}

			reloader := server.NewReloader(*cfg, rt.throttler, &logLevel, logger.Named("reload"))
			if _, err := config.Watch(cfgFile, logger, reloader.Apply); err != nil {
				logger.Warn("config watch disabled", zap.Error(err))
			}

			// Reload the base collections whenever the session changes user.
			changes, stop := a.session.Changes()
			defer stop()
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-changes:
						if err := rt.service.Refresh(ctx); err != nil && !errors.Is(err, dashboard.ErrNoSession) {
							logger.Warn("refresh after session change failed", zap.Error(err))
						}
					}
				}
			}()

			go func() {
				if err := rt.gate.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("gate stopped", zap.Error(err))
				}
			}()

			handlers := server.NewHandlers(rt.service, logger.Named("http"))
			httpServer := &http.Server{
				Addr:         addr,
				Handler:      server.NewRouter(handlers, reloader, logger.Named("http")),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server", zap.String("addr", addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
			}

			logger.Info("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	cmd.Flags().StringSliceVar(&convoys, "convoy", nil, "also join these convoy channels")
	return cmd
}
