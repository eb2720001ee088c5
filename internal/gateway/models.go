package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Hardik94/shabdabhav/internal/apierr"
)

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   s.Store.List(),
		"voices": s.Store.ListPiperVoices(),
	})
}

type downloadRequest struct {
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
	Format string `json:"format,omitempty"`
	Voice  string `json:"voice,omitempty"`
}

// handleModelsDownload routes a download by name prefix and starts it on a
// detached task. Re-requests while a download is in flight return its
// current state without scheduling another.
func (s *Server) handleModelsDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.BadRequest, "invalid json"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		apierr.WriteJSON(w, apierr.New(apierr.BadRequest, "name required"))
		return
	}

	key := req.Name
	var task func(ctx context.Context) (string, error)
	switch {
	case strings.HasPrefix(req.Name, "parler-tts/"):
		task = func(ctx context.Context) (string, error) {
			return s.Store.DownloadParler(ctx, req.Name)
		}
	case req.Name == "piper-tts":
		if req.Voice == "" {
			apierr.WriteJSON(w, apierr.New(apierr.BadRequest, "voice required for piper-tts"))
			return
		}
		key = "piper-tts/" + req.Voice
		task = func(ctx context.Context) (string, error) {
			return s.Store.DownloadPiperVoice(ctx, req.Voice)
		}
	case strings.HasPrefix(req.Name, "ggml-") ||
		strings.HasSuffix(req.Name, ".bin") || strings.HasSuffix(req.Name, ".gguf"):
		task = func(ctx context.Context) (string, error) {
			return s.Store.DownloadWhisper(ctx, req.Name, req.URL)
		}
	default:
		if req.URL == "" {
			apierr.WriteJSON(w, apierr.New(apierr.BadRequest, "url required for generic download"))
			return
		}
		task = func(ctx context.Context) (string, error) {
			return s.Store.DownloadModel(ctx, req.Name, req.URL, req.Format)
		}
	}

	if s.Store.Start(key, task) {
		slog.Info("download started", "name", key)
	}
	st, _ := s.Store.Status(key)
	writeJSON(w, http.StatusOK, map[string]string{
		"status": string(st.State),
		"path":   st.Path,
	})
}
