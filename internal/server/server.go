package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/quillon/docresearch/config"
	"github.com/quillon/docresearch/internal/provider"
	"github.com/quillon/docresearch/internal/research"
	"github.com/quillon/docresearch/internal/runtime"
	"github.com/quillon/docresearch/internal/store"
	"github.com/quillon/docresearch/internal/vectorstore"
	"github.com/quillon/docresearch/internal/worker"
)

// Run wires the full backend and serves HTTP until the process exits. The
// in-process worker consumes the same redis trigger list a dedicated worker
// node would, so single-node deployments need no extra process.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

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
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	dsn, err := cfg.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.Redis.Host == "" || cfg.Redis.Port == "" {
		return fmt.Errorf("redis not configured (redis.host/port)")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Redis.Addr(), err)
	}
	trigger := worker.NewTrigger(rdb, cfg.Redis.TriggerList)

	chunks, err := vectorstore.NewClient(cfg.VectorStore)
	if err != nil {
		return err
	}

	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch := research.NewOrchestrator(orchLogger, st, st, chunks, nil, provider.Options{
		Timeout:     cfg.Research.ProviderTimeout,
		MaxTokens:   cfg.Research.MaxTokens,
		Temperature: cfg.Research.Temperature,
	})

	workerLogger := log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	runner := worker.NewRunner(workerLogger, rdb, cfg.Redis.TriggerList, orch)
	go func() {
		if err := runner.Start(ctx); err != nil {
			workerLogger.Printf("worker stopped: %v", err)
		}
	}()

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	api := e.Group("/api")

	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	rh := &ResearchHandler{Store: st, Trigger: trigger, Logger: baseLogger}
	rh.Register(api.Group("/research"), []byte(secret))

	ah := &ActivityHandler{Store: st}
	ah.Register(api.Group("/activity-log"), []byte(secret))

	th := &TeamModelHandler{Store: st}
	th.Register(api.Group("/teams"), []byte(secret))

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10010"
	}
	return e.Start(addr)
}

func withAuth(secret []byte) echo.MiddlewareFunc {
	return runtime.EchoAuthMiddleware(secret)
}
