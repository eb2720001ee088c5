package engines

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/Hardik94/shabdabhav/internal/apierr"
	"github.com/Hardik94/shabdabhav/internal/metrics"
	"github.com/Hardik94/shabdabhav/internal/store"
)

// synthesisTimeout bounds one piper invocation.
const synthesisTimeout = 120 * time.Second

// Piper synthesizes speech by invoking the piper binary per request. The
// loaded handle is the resolved voice model path; the sidecar config is
// derived from it.
type Piper struct {
	Bin       string
	Store     *store.Store
	AudioRoot string
}

type piperHandle struct {
	binPath    string
	modelPath  string
	configPath string
}

// Load resolves the binary and the voice artifact. Piper holds no memory
// between requests, so the release hook is nil.
func (p *Piper) Load(ctx context.Context, model string, extras Extras) (Handle, ReleaseFunc, error) {
	bin := p.Bin
	if bin == "" {
		if guessed, err := exec.LookPath("piper"); err == nil {
			bin = guessed
		}
	}
	if bin == "" {
		return nil, nil, apierr.New(apierr.DependencyMissing, "PIPER_BIN not configured or binary not found")
	}
	if _, err := os.Stat(bin); err != nil {
		return nil, nil, apierr.New(apierr.DependencyMissing, "PIPER_BIN not configured or binary not found")
	}

	modelPath, err := p.Store.ResolvePiperModel(model, extras.Voice)
	if err != nil {
		return nil, nil, err
	}
	configPath := modelPath + ".json"
	if _, err := os.Stat(configPath); err != nil {
		return nil, nil, apierr.New(apierr.ArtifactMissing, "piper config not found: %s", configPath)
	}
	return &piperHandle{binPath: bin, modelPath: modelPath, configPath: configPath}, nil, nil
}

// Synthesize runs piper with the text staged in a file and returns the WAV
// output. A copy is kept under the audio directory.
func (p *Piper) Synthesize(ctx context.Context, h Handle, text string, extras Extras) ([]byte, error) {
	ph := h.(*piperHandle)
	start := time.Now()

	td, err := os.MkdirTemp("", "piper-")
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "temp dir")
	}
	defer os.RemoveAll(td)

	textFile := filepath.Join(td, "text.txt")
	wavFile := filepath.Join(td, "out.wav")
	if err := os.WriteFile(textFile, []byte(text), 0o644); err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "write text file")
	}

	ctx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, ph.binPath,
		"--model", ph.modelPath,
		"--config", ph.configPath,
		"--output_file", wavFile,
		"--text_file", textFile,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		metrics.Errors.WithLabelValues("tts", "piper").Inc()
		return nil, apierr.Wrap(apierr.InvocationFailed, err, "piper: %s", out)
	}

	blob, err := os.ReadFile(wavFile)
	if err != nil {
		return nil, apierr.Wrap(apierr.InvocationFailed, err, "read piper output")
	}

	metrics.StageDuration.WithLabelValues("tts").Observe(time.Since(start).Seconds())
	p.persist(blob)
	return blob, nil
}

func (p *Piper) persist(blob []byte) {
	dir := filepath.Join(p.AudioRoot, "tts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	dest := filepath.Join(dir, fmt.Sprintf("tts_%d.wav", timestamp()))
	if err := os.WriteFile(dest, blob, 0o644); err != nil {
		slog.Warn("persist tts audio", "error", err)
	}
}
