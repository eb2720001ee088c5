package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATA_DIR", "API_TOKENS", "STREAM_ENGINE_BASE", "QUIC_INSECURE",
		"PIPER_BIN", "WHISPER_CPP_BIN", "HUGGINGFACE_TOKEN",
	} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if len(cfg.APITokens) != 0 {
		t.Errorf("APITokens = %v, want empty (auth disabled)", cfg.APITokens)
	}
	if !cfg.InsecureQUIC {
		t.Error("InsecureQUIC should default to on")
	}
	if cfg.WhisperThreads <= 0 {
		t.Errorf("WhisperThreads = %d", cfg.WhisperThreads)
	}
}

func TestLoad_TokensAndInsecure(t *testing.T) {
	t.Setenv("API_TOKENS", " s1, s2 ,,s3 ")
	t.Setenv("QUIC_INSECURE", "0")
	cfg := Load()
	want := []string{"s1", "s2", "s3"}
	if len(cfg.APITokens) != len(want) {
		t.Fatalf("tokens = %v", cfg.APITokens)
	}
	for i, tok := range want {
		if cfg.APITokens[i] != tok {
			t.Errorf("token[%d] = %q, want %q", i, cfg.APITokens[i], tok)
		}
	}
	if cfg.InsecureQUIC {
		t.Error("QUIC_INSECURE=0 should disable insecure mode")
	}
}

func TestPathHelpers_CreateDirs(t *testing.T) {
	cfg := &Config{DataDir: filepath.Join(t.TempDir(), "data")}
	for name, path := range map[string]string{
		"models": cfg.ModelsRoot(),
		"piper":  cfg.PiperRoot(),
		"audio":  cfg.AudioRoot(),
		"tmp":    cfg.TmpRoot(),
	} {
		st, err := os.Stat(path)
		if err != nil || !st.IsDir() {
			t.Errorf("%s root %q not created: %v", name, path, err)
		}
	}
}
