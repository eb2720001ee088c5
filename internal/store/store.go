// Package store owns the on-disk model tree: enumeration, voice resolution
// and resumable artifact downloads.
package store

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Hardik94/shabdabhav/internal/apierr"
)

// Store manages data/models and data/piper-tts. All methods are safe for
// concurrent use; only the download-state table takes the store lock, never
// a network transfer.
type Store struct {
	modelsRoot string
	piperRoot  string
	hfToken    string

	client *http.Client

	mu        sync.Mutex
	downloads map[string]*DownloadStatus
	notify    func(Event)
}

// Option configures a Store.
type Option func(*Store)

// WithHFToken attaches a Hugging Face bearer token to downloads.
func WithHFToken(token string) Option {
	return func(s *Store) { s.hfToken = token }
}

// WithNotify registers a callback invoked on every download-state transition.
func WithNotify(fn func(Event)) Option {
	return func(s *Store) { s.notify = fn }
}

// WithHTTPClient overrides the download client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// New creates a store over the given roots.
func New(modelsRoot, piperRoot string, opts ...Option) *Store {
	s := &Store{
		modelsRoot: modelsRoot,
		piperRoot:  piperRoot,
		client:     &http.Client{Timeout: 0}, // transfers can be long; resume covers drops
		downloads:  make(map[string]*DownloadStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ModelInfo describes one on-disk model directory.
type ModelInfo struct {
	ID    string   `json:"id"`
	Files []string `json:"files"`
}

// List walks the models root one level deep. A directory counts as a model
// iff it contains config.json or any .onnx file. Hidden cache directories
// are skipped.
func (s *Store) List() []ModelInfo {
	out := []ModelInfo{}
	entries, err := os.ReadDir(s.modelsRoot)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files := listFiles(filepath.Join(s.modelsRoot, entry.Name()))
		if !isModelDir(files) {
			continue
		}
		out = append(out, ModelInfo{ID: entry.Name(), Files: files})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPiperVoices lists downloaded piper voices by locating .onnx.json
// sidecars. The voice id is the path relative to the piper root with the
// extension stripped.
func (s *Store) ListPiperVoices() []string {
	voices := []string{}
	filepath.WalkDir(s.piperRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".onnx.json") {
			return nil
		}
		rel, err := filepath.Rel(s.piperRoot, path)
		if err != nil {
			return nil
		}
		voices = append(voices, strings.TrimSuffix(rel, ".onnx.json"))
		return nil
	})
	sort.Strings(voices)
	return voices
}

// ResolvePiperModel locates the .onnx file for a model/voice pair, trying in
// order: a literal path, models/<model>/*.onnx, the piper tree by voice,
// then the piper tree by model name.
func (s *Store) ResolvePiperModel(model, voice string) (string, error) {
	if st, err := os.Stat(model); err == nil && !st.IsDir() {
		return model, nil
	}

	if matches, _ := filepath.Glob(filepath.Join(s.modelsRoot, model, "*.onnx")); len(matches) > 0 {
		sort.Strings(matches)
		return matches[0], nil
	}

	if voice != "" {
		if found := s.searchVoice(voice); found != "" {
			return found, nil
		}
	}
	if found := s.searchVoice(model); found != "" {
		return found, nil
	}

	return "", apierr.New(apierr.ArtifactMissing,
		"piper model not found: looked for %q under %s and %s", model, s.modelsRoot, s.piperRoot)
}

// searchVoice accepts either a relative path under the piper root or a bare
// voice id like en_US-amy-medium, with or without the .onnx extension. As a
// last resort it walks the tree for a filename ending in the pattern.
func (s *Store) searchVoice(pattern string) string {
	if candidate := filepath.Join(s.piperRoot, pattern); fileExists(candidate) {
		return candidate
	}
	target := pattern
	if !strings.HasSuffix(target, ".onnx") {
		target += ".onnx"
		if candidate := filepath.Join(s.piperRoot, target); fileExists(candidate) {
			return candidate
		}
	}

	var found string
	filepath.WalkDir(s.piperRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return nil
		}
		name := d.Name()
		if name == target || strings.HasSuffix(name, target) {
			found = path
		}
		return nil
	})
	return found
}

func isModelDir(files []string) bool {
	for _, f := range files {
		if f == "config.json" || strings.HasSuffix(f, ".onnx") {
			return true
		}
	}
	return false
}

func listFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	files := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
