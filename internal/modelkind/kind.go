// Package modelkind maps an opaque client-supplied model identifier to the
// runtime flavor that serves it. Classification is deterministic: it depends
// only on the identifier, the endpoint, and the existence of specific files
// under the models root.
package modelkind

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Hardik94/shabdabhav/internal/apierr"
)

// Kind is a runtime flavor.
type Kind string

const (
	ParlerSnapshot  Kind = "parler"
	PiperONNXVoice  Kind = "piper"
	WhisperCPPLocal Kind = "whispercpp"
	HFWhisperRemote Kind = "hf-whisper"
)

// Endpoint selects the classification rules.
type Endpoint int

const (
	TTS Endpoint = iota
	STT
)

// hfAliases are bare whisper names normalized to openai/<name>.
var hfAliases = map[string]bool{
	"whisper-tiny":     true,
	"whisper-base":     true,
	"whisper-small":    true,
	"whisper-medium":   true,
	"whisper-large":    true,
	"whisper-large-v2": true,
}

// Classifier probes the local models directory. It never touches the network.
type Classifier struct {
	ModelsRoot string
}

// Classify resolves id to a kind for the given endpoint. A whisper artifact
// on the TTS route is rejected with a wrong-endpoint error.
func (c *Classifier) Classify(id string, ep Endpoint) (Kind, error) {
	if ep == STT {
		if looksLikeHFWhisper(id) {
			return HFWhisperRemote, nil
		}
		return WhisperCPPLocal, nil
	}

	if c.looksLikeParler(id) {
		return ParlerSnapshot, nil
	}
	if c.looksLikeWhisper(id) {
		return "", apierr.New(apierr.WrongEndpoint,
			"Whisper/STT models are not valid for TTS. Use /v1/stream/audio/transcriptions.")
	}
	return PiperONNXVoice, nil
}

// HFModelID normalizes an alias like "whisper-small" to "openai/whisper-small".
func HFModelID(id string) string {
	if strings.HasPrefix(id, "openai/") {
		return id
	}
	return "openai/" + id
}

func looksLikeHFWhisper(id string) bool {
	return strings.HasPrefix(id, "openai/whisper-") || hfAliases[id]
}

func (c *Classifier) looksLikeWhisper(id string) bool {
	if strings.HasPrefix(id, "ggml-") || strings.HasSuffix(id, ".gguf") || strings.HasSuffix(id, ".bin") {
		return true
	}
	return c.dirHasAny(id, "*.gguf") || c.dirHasAny(id, "*.bin")
}

func (c *Classifier) looksLikeParler(id string) bool {
	if strings.HasPrefix(id, "parler-tts") {
		return true
	}
	dir := filepath.Join(c.ModelsRoot, id)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return false
	}
	if fileExists(filepath.Join(dir, "config.json")) || fileExists(filepath.Join(dir, "pytorch_model.bin")) {
		return true
	}
	return c.dirHasAny(id, "*.safetensors")
}

func (c *Classifier) dirHasAny(id, pattern string) bool {
	matches, err := filepath.Glob(filepath.Join(c.ModelsRoot, id, pattern))
	return err == nil && len(matches) > 0
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
