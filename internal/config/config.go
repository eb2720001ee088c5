// Package config resolves environment-driven settings and the on-disk data
// layout shared by the gateway and the engine.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Hardik94/shabdabhav/internal/env"
)

// Config holds the environment settings shared by both processes. Listener
// port, rate-limit and cache-size settings are read by the mains directly.
type Config struct {
	DataDir string

	APITokens []string

	EngineBase   string
	ClientCert   string
	ClientKey    string
	InsecureQUIC bool

	PiperBin       string
	WhisperBin     string
	WhisperThreads int
	ParlerBin      string

	HFToken         string
	HFInferenceBase string
}

// Load reads the environment once. Callers keep the returned struct for the
// process lifetime.
func Load() *Config {
	return &Config{
		DataDir:         env.Str("DATA_DIR", "data"),
		APITokens:       splitTokens(env.Str("API_TOKENS", "")),
		EngineBase:      env.Str("STREAM_ENGINE_BASE", ""),
		ClientCert:      env.Str("QUIC_CLIENT_CERT", ""),
		ClientKey:       env.Str("QUIC_CLIENT_KEY", ""),
		InsecureQUIC:    env.Bool("QUIC_INSECURE", true),
		PiperBin:        env.Str("PIPER_BIN", ""),
		WhisperBin:      env.Str("WHISPER_CPP_BIN", ""),
		WhisperThreads:  env.Int("WHISPER_THREADS", runtime.NumCPU()),
		ParlerBin:       env.Str("PARLER_BIN", ""),
		HFToken:         env.Str("HUGGINGFACE_TOKEN", ""),
		HFInferenceBase: env.Str("HF_INFERENCE_BASE", "https://api-inference.huggingface.co"),
	}
}

func splitTokens(raw string) []string {
	var out []string
	for _, tok := range strings.Split(raw, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// DataRoot returns the data directory, creating it if needed.
func (c *Config) DataRoot() string {
	return ensureDir(c.DataDir)
}

// ModelsRoot is where downloaded model directories live.
func (c *Config) ModelsRoot() string {
	return ensureDir(filepath.Join(c.DataDir, "models"))
}

// PiperRoot is where piper voice files live.
func (c *Config) PiperRoot() string {
	return ensureDir(filepath.Join(c.DataDir, "piper-tts"))
}

// AudioRoot is where synthesized and uploaded audio artifacts are kept.
func (c *Config) AudioRoot() string {
	return ensureDir(filepath.Join(c.DataDir, "audio"))
}

// TmpRoot holds request-scoped scratch files.
func (c *Config) TmpRoot() string {
	return ensureDir(filepath.Join(c.DataDir, "tmp"))
}

func ensureDir(path string) string {
	os.MkdirAll(path, 0o755)
	return path
}
