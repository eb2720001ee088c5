package engines

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Hardik94/shabdabhav/internal/apierr"
	"github.com/Hardik94/shabdabhav/internal/audio"
	"github.com/Hardik94/shabdabhav/internal/metrics"
)

// transcribeTimeout bounds one whisper.cpp invocation.
const transcribeTimeout = 300 * time.Second

// WhisperCPP transcribes audio by invoking the whisper.cpp binary with a
// local ggml/gguf model. The loaded handle is the resolved model path.
type WhisperCPP struct {
	Bin        string
	ModelsRoot string
	AudioRoot  string
	Threads    int
}

type whisperHandle struct {
	binPath   string
	modelPath string
}

// Load locates the binary and the model artifact. A directory-valued binary
// path is probed for the common whisper.cpp binary names.
func (w *WhisperCPP) Load(ctx context.Context, model string, extras Extras) (Handle, ReleaseFunc, error) {
	bin := w.Bin
	if bin == "" {
		for _, candidate := range []string{"whisper-cpp", "whisper_cpp", "main", "whisper"} {
			if guessed, err := exec.LookPath(candidate); err == nil {
				bin = guessed
				break
			}
		}
	}
	if bin == "" {
		return nil, nil, apierr.New(apierr.DependencyMissing, "WHISPER_CPP_BIN not configured or binary not found")
	}
	st, err := os.Stat(bin)
	if err != nil {
		return nil, nil, apierr.New(apierr.DependencyMissing, "WHISPER_CPP_BIN not configured or binary not found")
	}
	if st.IsDir() {
		resolved := ""
		for _, name := range []string{"main", "whisper-cpp", "whisper"} {
			candidate := filepath.Join(bin, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
				resolved = candidate
				break
			}
		}
		if resolved == "" {
			return nil, nil, apierr.New(apierr.DependencyMissing, "no whisper.cpp binary under %s", bin)
		}
		bin = resolved
	}

	modelPath := model
	if _, err := os.Stat(modelPath); err != nil {
		dir := filepath.Join(w.ModelsRoot, model)
		matches, _ := filepath.Glob(filepath.Join(dir, "*.gguf"))
		bins, _ := filepath.Glob(filepath.Join(dir, "*.bin"))
		matches = append(matches, bins...)
		if len(matches) == 0 {
			return nil, nil, apierr.New(apierr.ArtifactMissing, "whisper model not found: %s", model)
		}
		sort.Strings(matches)
		modelPath = matches[0]
	}
	return &whisperHandle{binPath: bin, modelPath: modelPath}, nil, nil
}

// Transcribe writes the WAV payload to a scratch file, runs whisper.cpp with
// -otxt, and reads back the transcript. Input and transcript are persisted
// under the audio directory.
func (w *WhisperCPP) Transcribe(ctx context.Context, h Handle, wav []byte, language string) (Transcription, error) {
	wh := h.(*whisperHandle)
	start := time.Now()

	td, err := os.MkdirTemp("", "whisper-")
	if err != nil {
		return Transcription{}, apierr.Wrap(apierr.Internal, err, "temp dir")
	}
	defer os.RemoveAll(td)

	wavPath := filepath.Join(td, "input.wav")
	outBase := filepath.Join(td, "out")
	if err := os.WriteFile(wavPath, wav, 0o644); err != nil {
		return Transcription{}, apierr.Wrap(apierr.Internal, err, "stage input wav")
	}

	threads := w.Threads
	if threads <= 0 {
		threads = 2
	}
	args := []string{
		"-t", strconv.Itoa(threads),
		"-m", wh.modelPath,
		"-f", wavPath,
		"-otxt",
		"-of", outBase,
	}
	if language != "" {
		args = append(args, "-l", language)
	}

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, wh.binPath, args...)
	cmd.Env = withLibraryPath(os.Environ(), wh.binPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		metrics.Errors.WithLabelValues("stt", "whispercpp").Inc()
		return Transcription{}, apierr.Wrap(apierr.InvocationFailed, err, "whisper.cpp: %s", out)
	}

	raw, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return Transcription{}, apierr.Wrap(apierr.InvocationFailed, err, "read transcript")
	}
	text := strings.TrimSpace(string(raw))

	metrics.StageDuration.WithLabelValues("stt").Observe(time.Since(start).Seconds())
	w.persist(wav, text)

	result := Transcription{Text: text, Language: language}
	if info, err := audio.ParseWAV(wav); err == nil {
		result.DurationSeconds = info.Duration.Seconds()
	}
	return result, nil
}

// withLibraryPath extends LD_LIBRARY_PATH with the directories whisper.cpp
// builds commonly leave libwhisper in (the binary dir, its parent, and a
// sibling src/).
func withLibraryPath(environ []string, binPath string) []string {
	binDir := filepath.Dir(binPath)
	rootDir := filepath.Dir(binDir)
	parts := []string{}
	current := ""
	out := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		if strings.HasPrefix(kv, "LD_LIBRARY_PATH=") {
			current = strings.TrimPrefix(kv, "LD_LIBRARY_PATH=")
			continue
		}
		out = append(out, kv)
	}
	for _, p := range strings.Split(current, ":") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for _, c := range []string{filepath.Join(rootDir, "src"), binDir, rootDir} {
		if _, err := os.Stat(c); err == nil && !contains(parts, c) {
			parts = append(parts, c)
		}
	}
	return append(out, "LD_LIBRARY_PATH="+strings.Join(parts, ":"))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (w *WhisperCPP) persist(wav []byte, text string) {
	base := filepath.Join(w.AudioRoot, "stt")
	uploads := filepath.Join(base, "uploads")
	transcripts := filepath.Join(base, "transcripts")
	if os.MkdirAll(uploads, 0o755) != nil || os.MkdirAll(transcripts, 0o755) != nil {
		return
	}
	ts := timestamp()
	if err := os.WriteFile(filepath.Join(uploads, fmt.Sprintf("stt_%d.wav", ts)), wav, 0o644); err != nil {
		slog.Warn("persist stt upload", "error", err)
	}
	if err := os.WriteFile(filepath.Join(transcripts, fmt.Sprintf("stt_%d.txt", ts)), []byte(text), 0o644); err != nil {
		slog.Warn("persist stt transcript", "error", err)
	}
}
