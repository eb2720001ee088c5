package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Hardik94/shabdabhav/internal/config"
	"github.com/Hardik94/shabdabhav/internal/middleware"
	"github.com/Hardik94/shabdabhav/internal/store"
)

// handlerRoundTripper serves bridge requests from an in-process handler so
// tests exercise the translation path without a QUIC listener.
type handlerRoundTripper struct {
	h http.Handler
}

func (rt handlerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	rt.h.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func newTestServer(t *testing.T, engine http.Handler, tokens ...string) *Server {
	t.Helper()
	cfg := &config.Config{
		DataDir:    t.TempDir(),
		APITokens:  tokens,
		EngineBase: "https://engine.test:9443",
	}
	bridge := &Bridge{base: cfg.EngineBase}
	if engine != nil {
		bridge.roundTripper = handlerRoundTripper{h: engine}
	} else {
		bridge.base = ""
	}
	hub := NewHub()
	return &Server{
		Cfg:     cfg,
		Store:   store.New(cfg.ModelsRoot(), cfg.PiperRoot(), store.WithNotify(hub.Publish)),
		Bridge:  bridge,
		Hub:     hub,
		Limiter: middleware.NewRateLimiter(1000, time.Minute),
		Tracker: middleware.NewConnTracker(),
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "127.0.0.1:55555"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoot(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, http.NotFoundHandler())
	rec := doJSON(t, srv.Handler(), "GET", "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["name"] != "shabdabhav-gateway" {
		t.Errorf("name = %v", body["name"])
	}
	if body["quic_base"] != "https://engine.test:9443" {
		t.Errorf("quic_base = %v", body["quic_base"])
	}
}

func TestAuthChain(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, http.NotFoundHandler(), "s1", "s2")
	h := srv.Handler()

	rec := doJSON(t, h, "GET", "/health", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "127.0.0.1:55555"
	req.Header.Set("Authorization", "Bearer s2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestAudioSpeech_RelaysEngineBytes(t *testing.T) {
	t.Parallel()
	wav := bytes.Repeat([]byte{0x5A}, 12345)
	engine := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stream/audio/speech" {
			t.Errorf("engine path = %s", r.URL.Path)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["text"] != "hello" || req["model"] != "en_US-amy-medium" {
			t.Errorf("engine payload = %v", req)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	})

	srv := newTestServer(t, engine)
	rec := doJSON(t, srv.Handler(), "POST", "/v1/audio/speech",
		map[string]string{"text": "hello", "model": "en_US-amy-medium"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("content-type = %s", ct)
	}
	if rec.Body.Len() != 12345 || !bytes.Equal(rec.Body.Bytes(), wav) {
		t.Errorf("body length = %d, want 12345 bit-identical bytes", rec.Body.Len())
	}
}

func TestAudioSpeech_EngineErrorBecomes502(t *testing.T) {
	t.Parallel()
	engine := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "piper model not found: amy"})
	})

	srv := newTestServer(t, engine)
	rec := doJSON(t, srv.Handler(), "POST", "/v1/audio/speech",
		map[string]string{"text": "hello", "model": "amy"})

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "piper model not found: amy") {
		t.Errorf("detail not preserved: %s", rec.Body.String())
	}
}

func TestAudioSpeech_NoEngineConfigured(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv.Handler(), "POST", "/v1/audio/speech",
		map[string]string{"text": "hello", "model": "amy"})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func postMultipart(t *testing.T, h http.Handler, fields map[string]string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(file)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/v1/audio/transcriptions", &buf)
	req.RemoteAddr = "127.0.0.1:55555"
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func transcriptionEngine(t *testing.T, wantAudio []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Language string `json:"language"`
			AudioB64 string `json:"audio_b64"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("engine decode: %v", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(req.AudioB64)
		if err != nil || !bytes.Equal(decoded, wantAudio) {
			t.Error("engine did not receive the uploaded audio")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"text":     "  hello from whisper  ",
			"language": req.Language,
			"duration": 1.5,
		})
	})
}

func TestAudioTranscriptions_JSON(t *testing.T) {
	t.Parallel()
	audio := []byte("RIFF pretend wav")
	srv := newTestServer(t, transcriptionEngine(t, audio))

	rec := postMultipart(t, srv.Handler(), map[string]string{
		"model":    "ggml-base.en",
		"language": "en",
	}, audio)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["text"] != "hello from whisper" {
		t.Errorf("text = %q, want trimmed transcript", body["text"])
	}
}

func TestAudioTranscriptions_TextFormat(t *testing.T) {
	t.Parallel()
	audio := []byte("RIFF pretend wav")
	srv := newTestServer(t, transcriptionEngine(t, audio))

	rec := postMultipart(t, srv.Handler(), map[string]string{
		"model":           "ggml-base.en",
		"response_format": "text",
	}, audio)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content-type = %s", ct)
	}
	if rec.Body.String() != "hello from whisper" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAudioTranscriptions_VerboseJSON(t *testing.T) {
	t.Parallel()
	audio := []byte("RIFF pretend wav")
	srv := newTestServer(t, transcriptionEngine(t, audio))

	rec := postMultipart(t, srv.Handler(), map[string]string{
		"model":           "ggml-base.en",
		"language":        "en",
		"response_format": "verbose_json",
	}, audio)

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["duration"] != 1.5 || body["language"] != "en" {
		t.Errorf("verbose body = %v", body)
	}
}

func TestAudioTranscriptions_BadFormat(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, transcriptionEngine(t, nil))
	rec := postMultipart(t, srv.Handler(), map[string]string{
		"response_format": "srt",
	}, []byte("x"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAudioTranscriptions_FileRequired(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, transcriptionEngine(t, nil))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("model", "whisper-1")
	mw.Close()
	req := httptest.NewRequest("POST", "/v1/audio/transcriptions", &buf)
	req.RemoteAddr = "127.0.0.1:55555"
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatCompletions_Echo(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv.Handler(), "POST", "/v1/chat/completions", map[string]any{
		"model": "anything",
		"messages": []map[string]string{
			{"role": "system", "content": "be nice"},
			{"role": "user", "content": "say hi"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Model   string `json:"model"`
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(body.ID, "chatcmpl-") {
		t.Errorf("id = %q", body.ID)
	}
	if body.Object != "chat.completion" || body.Model != "anything" {
		t.Errorf("object/model = %s/%s", body.Object, body.Model)
	}
	if len(body.Choices) != 1 || body.Choices[0].Message.Content != "echo: say hi" {
		t.Errorf("choices = %+v", body.Choices)
	}
	if body.Choices[0].Message.Role != "assistant" || body.Choices[0].FinishReason != "stop" {
		t.Errorf("role/finish = %s/%s", body.Choices[0].Message.Role, body.Choices[0].FinishReason)
	}
}

func TestImagesGenerations_NotImplemented(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv.Handler(), "POST", "/v1/images/generations", map[string]string{})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestModelsDownload_Validation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	h := srv.Handler()

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing name", map[string]string{}},
		{"piper without voice", map[string]string{"name": "piper-tts"}},
		{"generic without url", map[string]string{"name": "some-model"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, "POST", "/v1/models/download", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestModels_ListEmpty(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv.Handler(), "GET", "/v1/models", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Data   []any `json:"data"`
		Voices []any `json:"voices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data == nil || len(body.Data) != 0 {
		t.Errorf("data = %v, want empty list", body.Data)
	}
	if body.Voices == nil || len(body.Voices) != 0 {
		t.Errorf("voices = %v, want empty list", body.Voices)
	}
}
