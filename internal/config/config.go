// Package config loads the pipeline's environment configuration using
// a getenv-with-defaults idiom, validating the result with a
// struct-tag validator instead of ad hoc field checks, since most
// fields here are connection strings and timeouts that fail loudly or
// not at all rather than needing cross-field logic.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// AppConfig holds every environment-sourced setting the pipeline needs
// to run: hot cache and audit log connections, the forecast provider
// endpoint, scheduling, and per-phase timing budgets.
type AppConfig struct {
	KVURL            string `validate:"required"`
	DBURL            string
	ProviderBaseURL  string `validate:"required,url"`
	ScheduleCron     string
	Port             string
	Version          string

	// FetchConcurrency bounds how many batch requests run at once
	// against the forecast provider.
	FetchConcurrency int `validate:"min=1"`

	// FetchTimeout bounds a single batch forecast request.
	FetchTimeout time.Duration `validate:"required"`

	// RunDeadline bounds one orchestration run end to end.
	RunDeadline time.Duration `validate:"required"`
}

// Load reads configuration from the environment (and an optional .env
// file) with sensible defaults, then validates the result.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: config: no .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{
		KVURL:            os.Getenv("KV_URL"),
		DBURL:            os.Getenv("DB_URL"),
		ProviderBaseURL:  os.Getenv("PROVIDER_BASE_URL"),
		ScheduleCron:     getenvDefault("SCHEDULE_CRON", "0 0,6,12,18 * * *"),
		Port:             getenvDefault("PORT", "8080"),
		Version:          getenvDefault("VERSION", "dev"),
		FetchConcurrency: getenvInt("FETCH_CONCURRENCY", 4),
	}

	fetchTimeoutStr := getenvDefault("FETCH_TIMEOUT", "30s")
	fetchTimeout, err := time.ParseDuration(fetchTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("config: invalid FETCH_TIMEOUT: %w", err)
	}
	cfg.FetchTimeout = fetchTimeout

	runDeadlineStr := getenvDefault("RUN_DEADLINE", "10m")
	runDeadline, err := time.ParseDuration(runDeadlineStr)
	if err != nil {
		return nil, fmt.Errorf("config: invalid RUN_DEADLINE: %w", err)
	}
	cfg.RunDeadline = runDeadline

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.DBURL == "" {
		log.Printf("WARN: config: DB_URL not set; audit log writes will be skipped")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
