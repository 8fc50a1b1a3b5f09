package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Config holds all flowsolve service configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr    string  `json:"listen_addr" validate:"required"`
	DBPath        string  `json:"db_path" validate:"required"`
	LogLevel      string  `json:"log_level" validate:"oneof=debug info warn error"`
	Tolerance     float64 `json:"tolerance" validate:"gt=0"`
	MaxIterations int     `json:"max_iterations" validate:"gt=0"`
	Strict        bool    `json:"strict"`
	Metrics       bool    `json:"metrics"`

	// Engineering design limits surfaced to the membrane calculators.
	MaxRecovery float64 `json:"max_recovery" validate:"gt=0,lte=100"`
	MaxFlux     float64 `json:"max_flux" validate:"gt=0"`
	MaxTMP      float64 `json:"max_tmp" validate:"gt=0"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:    ":4200",
		DBPath:        filepath.Join(flowsolveDir(), "flowsolve.db"),
		LogLevel:      "info",
		Tolerance:     1e-6,
		MaxIterations: 100,
		Metrics:       true,
		MaxRecovery:   98.0,
		MaxFlux:       120.0,
		MaxTMP:        3.0,
	}
}

func flowsolveDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowsolve"
	}
	return filepath.Join(home, ".flowsolve")
}

func settingsPath() string {
	return filepath.Join(flowsolveDir(), "settings.json")
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWSOLVE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLOWSOLVE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWSOLVE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWSOLVE_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tolerance = f
		}
	}
	if v := os.Getenv("FLOWSOLVE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}
	if v := os.Getenv("FLOWSOLVE_STRICT"); v != "" {
		cfg.Strict = v == "true" || v == "1"
	}
	if v := os.Getenv("FLOWSOLVE_METRICS"); v != "" {
		cfg.Metrics = v == "true" || v == "1"
	}
	if v := os.Getenv("FLOWSOLVE_MAX_RECOVERY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxRecovery = f
		}
	}
	if v := os.Getenv("FLOWSOLVE_MAX_FLUX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxFlux = f
		}
	}
	if v := os.Getenv("FLOWSOLVE_MAX_TMP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxTMP = f
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
