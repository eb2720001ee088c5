package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Hardik94/shabdabhav/internal/apierr"
	"github.com/Hardik94/shabdabhav/internal/audio"
	"github.com/Hardik94/shabdabhav/internal/metrics"
	"github.com/Hardik94/shabdabhav/internal/modelkind"
)

// HFWhisper transcribes through the hosted Hugging Face whisper checkpoints
// (openai/whisper-*). The handle is the normalized model id; nothing is
// resident locally, so the release hook is nil.
type HFWhisper struct {
	Base   string
	Token  string
	client *http.Client
}

// NewHFWhisper creates the remote adapter with a pooled client.
func NewHFWhisper(base, token string) *HFWhisper {
	return &HFWhisper{
		Base:   base,
		Token:  token,
		client: newPooledHTTPClient(10, 120*time.Second),
	}
}

// Load validates that the remote runtime is reachable in principle: a token
// is required for the hosted endpoint.
func (h *HFWhisper) Load(ctx context.Context, model string, extras Extras) (Handle, ReleaseFunc, error) {
	if h.Token == "" {
		return nil, nil, apierr.New(apierr.DependencyMissing,
			"HF whisper runtime needs HUGGINGFACE_TOKEN for hosted inference")
	}
	return modelkind.HFModelID(model), nil, nil
}

// Transcribe posts the WAV payload to the hosted model and decodes the
// transcript.
func (h *HFWhisper) Transcribe(ctx context.Context, handle Handle, wav []byte, language string) (Transcription, error) {
	modelID := handle.(string)
	start := time.Now()

	url := fmt.Sprintf("%s/models/%s", h.Base, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(wav))
	if err != nil {
		return Transcription{}, apierr.Wrap(apierr.Internal, err, "build inference request")
	}
	req.Header.Set("Authorization", "Bearer "+h.Token)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := h.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("stt", "hf").Inc()
		return Transcription{}, apierr.Wrap(apierr.UpstreamUnavailable, err, "hf inference")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.Errors.WithLabelValues("stt", "hf").Inc()
		return Transcription{}, apierr.New(apierr.InvocationFailed, "hf inference status %d: %s", resp.StatusCode, body)
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Transcription{}, apierr.Wrap(apierr.InvocationFailed, err, "decode hf response")
	}

	metrics.StageDuration.WithLabelValues("stt").Observe(time.Since(start).Seconds())
	result := Transcription{Text: decoded.Text, Language: language}
	if info, err := audio.ParseWAV(wav); err == nil {
		result.DurationSeconds = info.Duration.Seconds()
	}
	return result, nil
}
