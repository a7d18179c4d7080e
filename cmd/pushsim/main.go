package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/config"
	"github.com/dgnsrekt/cargoviz-realtime/internal/pushsim"
	"github.com/dgnsrekt/cargoviz-realtime/internal/recording"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Setup logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Load config
	cfg, err := config.LoadPushSimConfig()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.Duration("interval", cfg.Interval),
		zap.Strings("cargoIds", cfg.CargoIDs),
		zap.Strings("areaIds", cfg.AreaIDs),
		zap.Strings("vehicleIds", cfg.VehicleIDs),
		zap.Uint64("seed", cfg.Seed),
		zap.Bool("tokenRequired", cfg.Token != ""),
		zap.String("replayFile", cfg.ReplayFile),
	)

	var src pushsim.Source
	if cfg.ReplayFile != "" {
		frames, err := recording.Load(cfg.ReplayFile)
		if err != nil {
			logger.Error("failed to load recording", zap.String("file", cfg.ReplayFile), zap.Error(err))
			return 1
		}
		replayer, err := pushsim.NewReplayer(frames)
		if err != nil {
			logger.Error("invalid recording", zap.Error(err))
			return 1
		}
		logger.Info("replaying recording", zap.Int("frames", len(frames)))
		src = replayer
	} else {
		src = pushsim.NewGenerator(pushsim.Entities{
			CargoIDs:   cfg.CargoIDs,
			AreaIDs:    cfg.AreaIDs,
			VehicleIDs: cfg.VehicleIDs,
		}, cfg.Seed)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := pushsim.NewHub(cfg.Token, logger)
	go hub.Run(ctx)

	go pushsim.NewStreamer(hub, src, cfg.Interval, logger).Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/ws", hub.ServeWS)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","clients":%d}`, hub.ClientCount())
	})

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting push simulator", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down push simulator...")

	// Cancel context to close WebSocket clients
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("push simulator stopped")
	return 0
}
