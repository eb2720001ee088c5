// Package streaming is the engine-side request router. It terminates HTTP/3
// streams, assembles each request body to end-of-stream, classifies the
// model, drives it through the cache into an adapter, and frames one
// response per stream.
package streaming

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quic-go/quic-go/http3"

	"github.com/Hardik94/shabdabhav/internal/apierr"
	"github.com/Hardik94/shabdabhav/internal/engines"
	"github.com/Hardik94/shabdabhav/internal/modelcache"
	"github.com/Hardik94/shabdabhav/internal/modelkind"
)

// serverName is sent on every response.
const serverName = "shabdabhav-quic/1.0"

// Server routes engine requests to the inference runtimes.
type Server struct {
	Cache      *modelcache.Cache
	Classifier *modelkind.Classifier

	Piper     engines.TTSEngine
	Parler    engines.TTSEngine
	Whisper   engines.STTEngine
	HFWhisper engines.STTEngine
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/stream/audio/speech", s.handleSpeech)
	mux.HandleFunc("POST /v1/stream/audio/transcriptions", s.handleTranscriptions)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, apierr.New(apierr.NotFound, "not found"))
	})
	return mux
}

// ListenAndServe terminates QUIC on addr with the given certificate.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string) error {
	srv := &http3.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServeTLS(certFile, keyFile) }()
	slog.Info("engine listening", "addr", addr, "proto", "h3")
	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type speechRequest struct {
	Text        string `json:"text"`
	Model       string `json:"model"`
	Voice       string `json:"voice,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	// The request is complete once the body reads to EOF; quic-go signals
	// that only after the peer's FIN.
	var req speechRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	req.Model = strings.TrimSpace(req.Model)
	if req.Text == "" || req.Model == "" {
		s.writeError(w, apierr.New(apierr.BadRequest, "text and model required"))
		return
	}

	kind, err := s.Classifier.Classify(req.Model, modelkind.TTS)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var engine engines.TTSEngine
	switch kind {
	case modelkind.ParlerSnapshot:
		engine = s.Parler
	default:
		engine = s.Piper
	}

	extras := engines.Extras{Voice: req.Voice, Description: req.Description}
	handle, err := s.load(r.Context(), kind, req.Model, extras, engine.Load)
	if err != nil {
		s.writeError(w, err)
		return
	}
	blob, err := engine.Synthesize(r.Context(), handle, req.Text, extras)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Server", serverName)
	w.Header().Set("Content-Type", "audio/wav")
	w.Write(blob)
}

type transcriptionRequest struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
	AudioB64 string `json:"audio_b64"`
}

func (s *Server) handleTranscriptions(w http.ResponseWriter, r *http.Request) {
	var req transcriptionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	req.Model = strings.TrimSpace(req.Model)
	if req.Model == "" {
		req.Model = "whisper-1"
	}
	if req.AudioB64 == "" {
		s.writeError(w, apierr.New(apierr.BadRequest, "audio_b64 required"))
		return
	}
	wav, err := base64.StdEncoding.DecodeString(req.AudioB64)
	if err != nil {
		s.writeError(w, apierr.New(apierr.BadRequest, "invalid base64"))
		return
	}

	kind, err := s.Classifier.Classify(req.Model, modelkind.STT)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var engine engines.STTEngine
	if kind == modelkind.HFWhisperRemote {
		engine = s.HFWhisper
	} else {
		engine = s.Whisper
	}

	handle, err := s.load(r.Context(), kind, req.Model, engines.Extras{}, engine.Load)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result, err := engine.Transcribe(r.Context(), handle, wav, req.Language)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// load drives the adapter's load step through the LRU cache. The key carries
// the kind and every load-affecting dimension so that switching runtimes for
// the same identifier never reuses a stale handle.
func (s *Server) load(ctx context.Context, kind modelkind.Kind, model string, extras engines.Extras,
	loadFn func(context.Context, string, engines.Extras) (engines.Handle, engines.ReleaseFunc, error)) (engines.Handle, error) {

	key := cacheKey(kind, model, extras)
	return s.Cache.Get(ctx, key, func(ctx context.Context) (any, modelcache.ReleaseFunc, error) {
		handle, release, err := loadFn(ctx, model, extras)
		if err != nil {
			return nil, nil, err
		}
		return handle, modelcache.ReleaseFunc(release), nil
	})
}

func cacheKey(kind modelkind.Kind, model string, extras engines.Extras) string {
	key := fmt.Sprintf("%s:%s", kind, model)
	if extras.Voice != "" {
		key += ":" + extras.Voice
	}
	return key
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apierr.Wrap(apierr.BadRequest, err, "read body")
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apierr.Wrap(apierr.BadRequest, err, "invalid json")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Server", serverName)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps taxonomy kinds onto engine statuses and the {"error"}
// envelope the gateway expects.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	slog.Error("engine request failed", "kind", string(kind), "error", err)
	s.writeJSON(w, kind.HTTPStatus(), map[string]string{"error": err.Error()})
}
