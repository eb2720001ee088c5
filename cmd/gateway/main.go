package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hardik94/shabdabhav/internal/config"
	"github.com/Hardik94/shabdabhav/internal/env"
	"github.com/Hardik94/shabdabhav/internal/gateway"
	"github.com/Hardik94/shabdabhav/internal/middleware"
	"github.com/Hardik94/shabdabhav/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := config.Load()
	port := env.Str("GATEWAY_PORT", "8000")
	maxRequests := env.Int("RATE_LIMIT_MAX", 120)
	windowSeconds := env.Int("RATE_LIMIT_WINDOW_SECONDS", 60)

	bridge, err := gateway.NewBridge(cfg.EngineBase, cfg.ClientCert, cfg.ClientKey, cfg.InsecureQUIC)
	if err != nil {
		slog.Error("bridge setup failed", "error", err)
		os.Exit(1)
	}

	hub := gateway.NewHub()
	st := store.New(cfg.ModelsRoot(), cfg.PiperRoot(),
		store.WithHFToken(cfg.HFToken),
		store.WithNotify(hub.Publish),
	)

	srv := &gateway.Server{
		Cfg:     cfg,
		Store:   st,
		Bridge:  bridge,
		Hub:     hub,
		Limiter: middleware.NewRateLimiter(maxRequests, time.Duration(windowSeconds)*time.Second),
		Tracker: middleware.NewConnTracker(),
	}

	addr := ":" + port
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	go awaitShutdown(httpSrv)

	slog.Info("gateway starting", "addr", addr, "engine", cfg.EngineBase)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

// awaitShutdown blocks until SIGINT/SIGTERM, then drains in-flight requests.
// Detached download tasks are not cancelled; partial transfers resume on the
// next start.
func awaitShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
