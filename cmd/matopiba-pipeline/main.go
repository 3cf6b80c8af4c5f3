package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/evaonline/matopiba-pipeline/internal/api/http"
	"github.com/evaonline/matopiba-pipeline/internal/auditlog"
	"github.com/evaonline/matopiba-pipeline/internal/citycatalog"
	"github.com/evaonline/matopiba-pipeline/internal/config"
	"github.com/evaonline/matopiba-pipeline/internal/forecast"
	"github.com/evaonline/matopiba-pipeline/internal/hotcache"
	"github.com/evaonline/matopiba-pipeline/internal/orchestrator"
	"github.com/evaonline/matopiba-pipeline/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	catalog, err := citycatalog.Load()
	if err != nil {
		log.Fatalf("failed to load city catalog: %v", err)
	}

	redisClient := redis.NewClient(parseRedisURL(cfg.KVURL))
	cache := hotcache.NewGateway(redisClient)

	var audit *auditlog.Store
	if cfg.DBURL == "" {
		audit = auditlog.NewNoop()
	} else {
		audit, err = auditlog.Open(cfg.DBURL)
		if err != nil {
			log.Fatalf("failed to open audit log: %v", err)
		}
	}

	forecastCfg := forecast.DefaultConfig(cfg.ProviderBaseURL)
	forecastCfg.MaxConcurrency = cfg.FetchConcurrency
	forecastCfg.RequestTimeout = cfg.FetchTimeout
	forecastCfg.HTTPClient = &http.Client{Timeout: cfg.FetchTimeout}
	forecastClient := forecast.NewClient(forecastCfg)

	task := orchestrator.NewTask(orchestrator.Config{
		Catalog:     catalog,
		Forecast:    forecastClient,
		Hotcache:    cache,
		Audit:       audit,
		Version:     cfg.Version,
		RunDeadline: cfg.RunDeadline,
	})

	sched := scheduler.New(task, cfg.ScheduleCron)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "matopiba-pipeline",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, cache)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// parseRedisURL tolerates both a bare host:port and a redis:// URL,
// since KV_URL is documented as "a connection string" without pinning
// its exact form.
func parseRedisURL(raw string) *redis.Options {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		log.Printf("WARN: KV_URL %q is not a redis:// URL, treating it as a bare address: %v", raw, err)
		return &redis.Options{Addr: raw}
	}
	return opts
}
