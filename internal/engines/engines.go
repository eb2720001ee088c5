// Package engines wraps the inference runtimes behind a two-step contract:
// Load resolves whatever the runtime needs into an opaque handle (plus a
// release hook the model cache runs on eviction), then Synthesize or
// Transcribe drives the loaded handle. Adapters may shell out to external
// binaries or call remote services; callers do not care which.
package engines

import (
	"context"
	"time"
)

// Handle is an opaque loaded-model reference, owned by the model cache.
type Handle any

// ReleaseFunc frees handle resources. nil means nothing to free.
type ReleaseFunc func()

// Extras carries the request knobs that influence loading or synthesis.
type Extras struct {
	Voice       string
	Description string
}

// Transcription is the STT result.
type Transcription struct {
	Text            string  `json:"text"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"duration,omitempty"`
}

// TTSEngine produces WAV bytes from text.
type TTSEngine interface {
	Load(ctx context.Context, model string, extras Extras) (Handle, ReleaseFunc, error)
	Synthesize(ctx context.Context, h Handle, text string, extras Extras) ([]byte, error)
}

// STTEngine produces a transcript from WAV bytes.
type STTEngine interface {
	Load(ctx context.Context, model string, extras Extras) (Handle, ReleaseFunc, error)
	Transcribe(ctx context.Context, h Handle, audio []byte, language string) (Transcription, error)
}

// timestamp names persisted audio artifacts; overridable in tests.
var timestamp = func() int64 { return time.Now().UnixMilli() }
