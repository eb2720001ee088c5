package engines

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Hardik94/shabdabhav/internal/apierr"
	"github.com/Hardik94/shabdabhav/internal/metrics"
)

// Parler synthesizes via an external runner that hosts the PyTorch runtime.
// The runner reads text on stdin and writes WAV to stdout; the snapshot
// directory and voice description are passed as flags. The runtime is
// optional: without a configured runner the engine reports
// dependency-missing, mirroring the other subprocess adapters.
type Parler struct {
	Bin        string
	ModelsRoot string
}

type parlerHandle struct {
	modelDir string
}

// defaultDescription is used when the request carries no voice description.
const defaultDescription = "A clear, neutral voice"

// Load checks for the runner and the local snapshot directory.
func (p *Parler) Load(ctx context.Context, model string, extras Extras) (Handle, ReleaseFunc, error) {
	if p.Bin == "" {
		return nil, nil, apierr.New(apierr.DependencyMissing,
			"Parler runtime not configured; set PARLER_BIN or mount the runner")
	}
	if _, err := os.Stat(p.Bin); err != nil {
		return nil, nil, apierr.New(apierr.DependencyMissing,
			"Parler runtime not configured; set PARLER_BIN or mount the runner")
	}
	dir := filepath.Join(p.ModelsRoot, filepath.FromSlash(model))
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, nil, apierr.New(apierr.ArtifactMissing, "parler model not found at %s", dir)
	}
	return &parlerHandle{modelDir: dir}, nil, nil
}

// Synthesize shells out to the runner and returns its WAV output.
func (p *Parler) Synthesize(ctx context.Context, h Handle, text string, extras Extras) ([]byte, error) {
	ph := h.(*parlerHandle)
	start := time.Now()

	description := extras.Description
	if description == "" {
		description = defaultDescription
	}

	ctx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, p.Bin,
		"--model-dir", ph.modelDir,
		"--description", description,
	)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		metrics.Errors.WithLabelValues("tts", "parler").Inc()
		return nil, apierr.Wrap(apierr.InvocationFailed, err, "parler runner: %s", stderr.Bytes())
	}
	if stdout.Len() == 0 {
		return nil, apierr.New(apierr.InvocationFailed, "parler runner produced no audio")
	}

	metrics.StageDuration.WithLabelValues("tts").Observe(time.Since(start).Seconds())
	return stdout.Bytes(), nil
}
