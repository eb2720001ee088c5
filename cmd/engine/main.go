package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hardik94/shabdabhav/internal/config"
	"github.com/Hardik94/shabdabhav/internal/engines"
	"github.com/Hardik94/shabdabhav/internal/env"
	"github.com/Hardik94/shabdabhav/internal/modelcache"
	"github.com/Hardik94/shabdabhav/internal/modelkind"
	"github.com/Hardik94/shabdabhav/internal/store"
	"github.com/Hardik94/shabdabhav/internal/streaming"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	host := flag.String("host", "0.0.0.0", "listen host")
	port := flag.String("port", "9443", "listen port")
	cert := flag.String("cert", "./quic_cert.pem", "TLS certificate")
	key := flag.String("key", "./quic_key.pem", "TLS private key")
	flag.Parse()

	cfg := config.Load()
	st := store.New(cfg.ModelsRoot(), cfg.PiperRoot(), store.WithHFToken(cfg.HFToken))

	srv := &streaming.Server{
		Cache:      modelcache.New(env.Int("MODEL_CACHE_SIZE", modelcache.DefaultCapacity)),
		Classifier: &modelkind.Classifier{ModelsRoot: cfg.ModelsRoot()},
		Piper: &engines.Piper{
			Bin:       cfg.PiperBin,
			Store:     st,
			AudioRoot: cfg.AudioRoot(),
		},
		Parler: &engines.Parler{
			Bin:        cfg.ParlerBin,
			ModelsRoot: cfg.ModelsRoot(),
		},
		Whisper: &engines.WhisperCPP{
			Bin:        cfg.WhisperBin,
			ModelsRoot: cfg.ModelsRoot(),
			AudioRoot:  cfg.AudioRoot(),
			Threads:    cfg.WhisperThreads,
		},
		HFWhisper: engines.NewHFWhisper(cfg.HFInferenceBase, cfg.HFToken),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := *host + ":" + *port
	if err := srv.ListenAndServe(ctx, addr, *cert, *key); err != nil && ctx.Err() == nil {
		slog.Error("engine failed", "error", err)
		os.Exit(1)
	}
	srv.Cache.Purge()
	slog.Info("engine stopped")
}
