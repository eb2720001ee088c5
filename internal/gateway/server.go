// Package gateway is the HTTP/1.1 front: OpenAI-compatible endpoints,
// admission middleware, model-store operations, and protocol translation to
// the HTTP/3 engine.
package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hardik94/shabdabhav/internal/apierr"
	"github.com/Hardik94/shabdabhav/internal/config"
	"github.com/Hardik94/shabdabhav/internal/middleware"
	"github.com/Hardik94/shabdabhav/internal/store"
)

// Server wires the gateway's shared components.
type Server struct {
	Cfg     *config.Config
	Store   *store.Store
	Bridge  *Bridge
	Hub     *Hub
	Limiter *middleware.RateLimiter
	Tracker *middleware.ConnTracker
}

// Handler builds the route table wrapped in the admission chain:
// auth → rate limit → connection observation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/models/download", s.handleModelsDownload)
	mux.Handle("GET /v1/models/events", s.Hub)

	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("POST /v1/audio/speech", s.handleAudioSpeech)
	mux.HandleFunc("POST /v1/audio/transcriptions", s.handleAudioTranscriptions)
	mux.HandleFunc("POST /v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		apierr.WriteJSON(w, apierr.New(apierr.DependencyMissing, "Image generation not implemented"))
	})

	var h http.Handler = mux
	h = s.Tracker.Middleware(h)
	h = s.Limiter.Middleware(h)
	h = middleware.Auth(s.Cfg.APITokens, h)
	return h
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "shabdabhav-gateway",
		"time":      float64(time.Now().UnixMilli()) / 1000,
		"quic_base": s.Cfg.EngineBase,
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
