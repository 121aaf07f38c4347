package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peercourt/internal/config"
	"peercourt/internal/limiter"
	"peercourt/internal/metrics"
	"peercourt/internal/service"
	"peercourt/internal/transport/rest"
	"peercourt/internal/transport/rest/handler"
	"peercourt/internal/transport/ws"
)

const (
	generalPoints = 40
	generalWindow = 2 * time.Second
	signalPoints  = 100
	signalWindow  = 10 * time.Second

	// limiter keys idle past this are pruned on each registry sweep
	limiterIdle = 10 * time.Minute
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	hub := ws.NewHub(logger, m)

	generalLimiter := limiter.NewBucket(generalPoints, generalWindow)
	signalLimiter := limiter.NewBucket(signalPoints, signalWindow)

	registry := service.NewRegistryService(hub, logger)
	registry.OnSweep(func() {
		generalLimiter.Prune(limiterIdle)
		signalLimiter.Prune(limiterIdle)
	})

	game := service.NewGameService(logger)
	game.SetBroadcaster(hub)

	signaling := service.NewSignalingService(logger)
	signaling.SetBroadcaster(hub)

	authSvc := service.NewAuthService(cfg.JWTSecret)

	gateway := ws.NewGateway(hub, registry, game, signaling, generalLimiter, signalLimiter, m, logger)
	wsHandler := ws.NewHandler(hub, gateway, authSvc, generalLimiter, m, logger)
	statusHandler := handler.NewStatusHandler(m, hub.ActiveConnections, registry.ActiveRooms)

	router := rest.NewRouter(&rest.Container{
		WSHandler:      wsHandler,
		StatusHandler:  statusHandler,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	// Stop the sweep and pending game timers first, then stop accepting
	// and let in-flight handlers finish.
	registry.Stop()
	game.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	hub.CloseAll()
	logger.Info("server exited")
}
