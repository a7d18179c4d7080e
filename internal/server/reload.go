package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dgnsrekt/cargoviz-realtime/internal/config"
)

// WindowSetter is the part of ws.Throttler a reload can retune.
type WindowSetter interface {
	SetWindow(window time.Duration)
}

// Reloader applies config file changes to the running process. Only settings
// that can change without reconnecting are applied: the throttle window and
// the log level. Everything else is reported as requiring a restart.
type Reloader struct {
	throttle WindowSetter
	level    *zap.AtomicLevel
	logger   *zap.Logger

	mu          sync.Mutex
	current     config.Config
	reloads     int
	lastReload  time.Time
	needRestart []string
}

// ReloadStatus is served at GET /reload.
type ReloadStatus struct {
	Reloads        int       `json:"reloads"`
	LastReload     time.Time `json:"last_reload,omitempty"`
	ThrottleMs     int       `json:"throttle_ms"`
	LogLevel       string    `json:"log_level"`
	RestartPending []string  `json:"restart_pending,omitempty"`
}

// NewReloader creates a Reloader starting from initial. level may be nil.
func NewReloader(initial config.Config, throttle WindowSetter, level *zap.AtomicLevel, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{
		throttle: throttle,
		level:    level,
		logger:   logger,
		current:  initial,
	}
}

// Apply is passed to config.Watch as the change callback.
func (rl *Reloader) Apply(next *config.Config) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	prev := rl.current

	if next.Realtime.ThrottleMs != prev.Realtime.ThrottleMs {
		rl.throttle.SetWindow(next.Realtime.ThrottleWindow())
		rl.logger.Info("throttle window changed",
			zap.Int("previousMs", prev.Realtime.ThrottleMs),
			zap.Int("newMs", next.Realtime.ThrottleMs),
		)
	}

	if rl.level != nil && next.Logging.Level != prev.Logging.Level {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(next.Logging.Level)); err != nil {
			rl.logger.Warn("ignoring invalid log level", zap.String("level", next.Logging.Level))
			next.Logging.Level = prev.Logging.Level
		} else {
			rl.level.SetLevel(lvl)
			rl.logger.Info("log level changed", zap.String("level", lvl.String()))
		}
	}

	for _, field := range restartFields(prev, *next) {
		if !contains(rl.needRestart, field) {
			rl.needRestart = append(rl.needRestart, field)
		}
		rl.logger.Warn("setting changed, restart to apply", zap.String("field", field))
	}

	rl.current = *next
	rl.reloads++
	rl.lastReload = time.Now()
}

// restartFields lists settings that differ but cannot be applied live.
func restartFields(prev, next config.Config) []string {
	var out []string
	if prev.API != next.API {
		out = append(out, "api")
	}
	if prev.Realtime.Endpoint != next.Realtime.Endpoint {
		out = append(out, "realtime.endpoint")
	}
	if prev.Realtime.MaxReconnectAttempts != next.Realtime.MaxReconnectAttempts ||
		prev.Realtime.ReconnectDelayMs != next.Realtime.ReconnectDelayMs ||
		prev.Realtime.PongWaitSec != next.Realtime.PongWaitSec {
		out = append(out, "realtime.reconnect")
	}
	if prev.Realtime.ThrottlePolicy != next.Realtime.ThrottlePolicy {
		out = append(out, "realtime.throttle_policy")
	}
	if prev.Realtime.HistorySize != next.Realtime.HistorySize {
		out = append(out, "realtime.history_size")
	}
	if prev.Server != next.Server {
		out = append(out, "server")
	}
	if prev.Session != next.Session {
		out = append(out, "session")
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (rl *Reloader) Status() ReloadStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return ReloadStatus{
		Reloads:        rl.reloads,
		LastReload:     rl.lastReload,
		ThrottleMs:     rl.current.Realtime.ThrottleMs,
		LogLevel:       rl.current.Logging.Level,
		RestartPending: append([]string(nil), rl.needRestart...),
	}
}

func (rl *Reloader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rl.Status()); err != nil {
		rl.logger.Warn("failed to encode reload status", zap.Error(err))
	}
}
