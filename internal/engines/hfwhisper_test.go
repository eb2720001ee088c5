package engines

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Hardik94/shabdabhav/internal/apierr"
)

func TestHFWhisper_RequiresToken(t *testing.T) {
	t.Parallel()
	h := NewHFWhisper("https://api-inference.huggingface.co", "")
	_, _, err := h.Load(context.Background(), "whisper-small", Extras{})
	if kindOf(t, err) != apierr.DependencyMissing {
		t.Errorf("kind = %v, want dependency-missing", err)
	}
}

func TestHFWhisper_Transcribe(t *testing.T) {
	t.Parallel()
	var gotPath, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "bonjour"}`))
	}))
	t.Cleanup(srv.Close)

	h := NewHFWhisper(srv.URL, "hf_token")
	handle, release, err := h.Load(context.Background(), "whisper-small", Extras{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if release != nil {
		t.Error("remote adapter should have no release hook")
	}
	if handle.(string) != "openai/whisper-small" {
		t.Errorf("handle = %v, want normalized id", handle)
	}

	result, err := h.Transcribe(context.Background(), handle, []byte("wav bytes"), "fr")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text != "bonjour" || result.Language != "fr" {
		t.Errorf("result = %+v", result)
	}
	if gotPath != "/models/openai/whisper-small" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer hf_token" {
		t.Errorf("auth = %s", gotAuth)
	}
	if string(gotBody) != "wav bytes" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestHFWhisper_UpstreamError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model loading"}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	h := NewHFWhisper(srv.URL, "hf_token")
	handle, _, err := h.Load(context.Background(), "openai/whisper-small", Extras{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.Transcribe(context.Background(), handle, []byte("wav"), "")
	if kindOf(t, err) != apierr.InvocationFailed {
		t.Errorf("kind = %v, want invocation-failed", err)
	}
}

func TestParler_LoadErrors(t *testing.T) {
	t.Parallel()
	p := &Parler{Bin: "", ModelsRoot: t.TempDir()}
	_, _, err := p.Load(context.Background(), "parler-tts/parler-tts-mini-v1", Extras{})
	if kindOf(t, err) != apierr.DependencyMissing {
		t.Errorf("unconfigured runner kind = %v", err)
	}

	p = &Parler{Bin: fakeBinary(t, "exit 0"), ModelsRoot: t.TempDir()}
	_, _, err = p.Load(context.Background(), "parler-tts/parler-tts-mini-v1", Extras{})
	if kindOf(t, err) != apierr.ArtifactMissing {
		t.Errorf("missing snapshot kind = %v", err)
	}
}

func TestParler_Synthesize(t *testing.T) {
	t.Parallel()
	modelsRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(modelsRoot, "parler-tts", "parler-tts-mini-v1"), 0o755); err != nil {
		t.Fatal(err)
	}

	// Echo the stdin text back as the "audio" so the pipe wiring is visible.
	p := &Parler{Bin: fakeBinary(t, "cat"), ModelsRoot: modelsRoot}
	h, _, err := p.Load(context.Background(), "parler-tts/parler-tts-mini-v1", Extras{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	blob, err := p.Synthesize(context.Background(), h, "synthesized text", Extras{Description: "warm voice"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(blob) != "synthesized text" {
		t.Errorf("blob = %q", blob)
	}
}
