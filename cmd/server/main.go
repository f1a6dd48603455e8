package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberlink/ember-backend/internal/api"
	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/auth"
	"github.com/emberlink/ember-backend/internal/cache"
	"github.com/emberlink/ember-backend/internal/config"
	"github.com/emberlink/ember-backend/internal/db"
	"github.com/emberlink/ember-backend/internal/logger"
	"github.com/emberlink/ember-backend/internal/server"
	"github.com/emberlink/ember-backend/internal/service/delivery"
	"github.com/emberlink/ember-backend/internal/service/match"
	"github.com/emberlink/ember-backend/internal/service/pool"
	"github.com/emberlink/ember-backend/internal/service/presence"
	"github.com/emberlink/ember-backend/internal/service/swipe"
	"github.com/emberlink/ember-backend/internal/ws"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	appCtx := app.New(database, redisCache, log, cfg)

	// Services
	verifier := auth.NewJWTVerifier(cfg)
	tracker := presence.NewTracker(appCtx)
	queue := delivery.NewQueue(appCtx)
	poolSvc := pool.NewService(appCtx)
	replenisher := pool.NewReplenisher(poolSvc, cfg.Pool.ReplenishInterval)
	matches := match.NewService(appCtx)
	coordinator := swipe.NewCoordinator(appCtx, matches)

	// Realtime gateway; match events flow back through it
	hub := ws.NewHub()
	gateway := ws.New(appCtx, hub, verifier, tracker, queue, coordinator, matches, replenisher)
	matches.SetNotifier(gateway)

	registrars := []server.Registrar{
		api.NewRegistrar(api.NewHandlers(appCtx, coordinator, matches, poolSvc), verifier),
		ws.NewRegistrar(gateway),
	}

	if os.Getenv("APP_ENV") == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	srv := server.NewHTTPServer(cfg, registrars...)
	log.Info("starting server", "addr", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
		}
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}
}
