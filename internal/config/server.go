package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PushSimConfig configures the development push service.
type PushSimConfig struct {
	Port     string
	Interval time.Duration // Time between synthetic frames per organization
	// Entity ids the streamer picks from
	CargoIDs   []string
	AreaIDs    []string
	VehicleIDs []string
	Seed       uint64 // Random seed for reproducible streams
	// Optional bearer token clients must present
	Token string
	// Optional recording (.jsonl or .jsonl.zst) to replay instead of
	// generating frames
	ReplayFile string
}

func LoadPushSimConfig() (*PushSimConfig, error) {
	// Parse stream interval
	intervalStr := getEnvOrDefault("PUSHSIM_INTERVAL", "1s")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		interval = time.Second // Default to 1s on parse error
	}

	cfg := &PushSimConfig{
		Port:       getEnvOrDefault("PORT", "8081"),
		Interval:   interval,
		CargoIDs:   splitList(getEnvOrDefault("PUSHSIM_CARGO_IDS", "cargo-1,cargo-2,cargo-3")),
		AreaIDs:    splitList(getEnvOrDefault("PUSHSIM_AREA_IDS", "area-1,area-2,area-3")),
		VehicleIDs: splitList(getEnvOrDefault("PUSHSIM_VEHICLE_IDS", "truck-1,truck-2")),
		Token:      os.Getenv("PUSHSIM_TOKEN"),
		ReplayFile: os.Getenv("PUSHSIM_REPLAY"),
	}

	seedStr := getEnvOrDefault("PUSHSIM_SEED", "1")
	seed, err := strconv.ParseUint(seedStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PUSHSIM_SEED: %s", seedStr)
	}
	cfg.Seed = seed

	// Validate
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid PUSHSIM_INTERVAL: %s (must be positive)", intervalStr)
	}
	if cfg.ReplayFile == "" && len(cfg.CargoIDs) == 0 && len(cfg.AreaIDs) == 0 && len(cfg.VehicleIDs) == 0 {
		return nil, fmt.Errorf("at least one of PUSHSIM_CARGO_IDS, PUSHSIM_AREA_IDS or PUSHSIM_VEHICLE_IDS is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
