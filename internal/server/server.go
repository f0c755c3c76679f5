// Package server exposes the coaching pipeline over HTTP and hosts the
// background ingest scheduler.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wearcoach/wearcoach/config"
	"github.com/wearcoach/wearcoach/internal/chat"
	"github.com/wearcoach/wearcoach/internal/intent"
	"github.com/wearcoach/wearcoach/internal/knowledge"
	"github.com/wearcoach/wearcoach/internal/provider"
	"github.com/wearcoach/wearcoach/internal/routine"
	"github.com/wearcoach/wearcoach/internal/store"
	"github.com/wearcoach/wearcoach/internal/telemetry"
	"github.com/wearcoach/wearcoach/internal/worker"
)

// Run wires the pipeline from configuration and serves until the listener
// fails. addr overrides the configured listen address when non-empty.
func Run(cfgPath, addr string) error {
	cfg := config.LoadConfig(cfgPath)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })

	var tele *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tele = telemetry.New(prometheus.DefaultRegisterer)
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := store.Open(dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	base, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	// Every collaborator call (classification fallback, embeddings, routine
	// generation, narrative completion) shares one concurrency bound.
	pool := worker.NewPool(cfg.Worker.PoolSize, cfg.Worker.QueueSize, cfg.Worker.TaskTimeout)
	defer pool.Shutdown()
	llm := provider.NewPooledProvider(base, pool)

	classifierOpts := []intent.Option{intent.WithTelemetry(tele)}
	if cfg.Storage.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:         fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password:     cfg.Storage.Redis.Password,
			DB:           cfg.Storage.Redis.DB,
			DialTimeout:  cfg.Storage.Redis.Timeout,
			ReadTimeout:  cfg.Storage.Redis.Timeout,
			WriteTimeout: cfg.Storage.Redis.Timeout,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		classifierOpts = append(classifierOpts, intent.WithRedis(rdb))
	}
	classifier := intent.NewClassifier(llm, cfg.Chat.IntentCacheTTL, classifierOpts...)

	ks := knowledge.New(llm, st,
		knowledge.WithVectorCacheSize(cfg.Chat.EmbeddingCacheSize),
		knowledge.WithTelemetry(tele))

	engine := routine.NewEngine(llm,
		routine.WithMaxNeighbors(cfg.Routine.MaxNeighbors),
		routine.WithTelemetry(tele))

	gen := chat.NewGenerator(llm, classifier, ks, engine,
		chat.WithTopK(cfg.Chat.TopK),
		chat.WithTemperature(cfg.LLM.Temperature),
		chat.WithRoutineDefaults(cfg.Routine.DefaultDifficulty, cfg.Routine.DefaultDurationMin),
		chat.WithTelemetry(tele))

	h := &Handler{Gen: gen, Knowledge: ks, DefaultCharacter: cfg.Chat.DefaultCharacter}
	h.Register(e.Group("/api"))

	sched := &Scheduler{
		Knowledge: ks,
		SpoolDir:  cfg.Server.SpoolDir,
		CronSpec:  cfg.Server.IngestCron,
		Stop:      make(chan struct{}),
	}
	sched.Start()
	defer close(sched.Stop)

	// Janitor for the intent cache; expiry is otherwise lazy.
	go func() {
		ticker := time.NewTicker(cfg.Chat.IntentCacheTTL)
		defer ticker.Stop()
		for {
			select {
			case <-sched.Stop:
				return
			case <-ticker.C:
				classifier.Sweep()
			}
		}
	}()

	if addr == "" {
		addr = cfg.Server.Address
		if addr == "" {
			addr = ":10002"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
