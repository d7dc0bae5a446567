// Package config reads the environment surface for the batching core and
// the demo binaries that wire it together.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the coordinator, the backend pool and
// the demo/loadtest binaries.
type Config struct {
	// Batching core (see spec §6 Configuration surface).
	BatchSize int    // 0 disables batching (passthrough mode)
	Engine    string // "tf" | "lite" | "trt" | "remote" | "fake"
	NumGPUs   int    // 0 => auto-detect
	BoardSide int    // 9 or 19

	// Backend-specific.
	ModelPath string
	// RemoteAddr is one or more comma-separated host:port endpoints for
	// the "remote" engine; split it with EndpointList before handing it
	// to backend.BuildOptions.
	RemoteAddr string
	FakePrior  float64 // used by the fake backend when Engine == "fake"
	FakeValue  float64
	UseNVML    string // "auto", "true", "false"

	// Demo / observability surface (not part of the core).
	WorkerID      string
	MetricsPort   int
	DashboardPort int
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		BatchSize:     envInt("BATCH_SIZE", 32),
		Engine:        envStr("ENGINE", "lite"),
		NumGPUs:       envInt("NUM_GPUS", 0),
		BoardSide:     envInt("BOARD_SIDE", 9),
		ModelPath:     envStr("MODEL_PATH", ""),
		RemoteAddr:    envStr("REMOTE_ADDR", "localhost:50051"),
		FakePrior:     envFloat("FAKE_PRIOR", 0),
		FakeValue:     envFloat("FAKE_VALUE", 0),
		UseNVML:       envStr("USE_NVML", "auto"),
		WorkerID:      envStr("WORKER_ID", "worker-0"),
		MetricsPort:   envInt("METRICS_PORT", 9090),
		DashboardPort: envInt("DASHBOARD_PORT", 8080),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// EndpointList splits a comma-separated host:port list, trimming blanks.
func EndpointList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
