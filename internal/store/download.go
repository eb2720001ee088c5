package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Hardik94/shabdabhav/internal/apierr"
	"github.com/Hardik94/shabdabhav/internal/metrics"
)

const userAgent = "shabdabhav/1.0"

// whisperBaseURL hosts the canonical ggml conversions of the whisper models.
const whisperBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// piperVoicesBaseURL is the rhasspy voice dataset.
const piperVoicesBaseURL = "https://huggingface.co/datasets/rhasspy/piper-voices/resolve/main/"

// knownWhisperModels maps canonical file names to their download URLs.
var knownWhisperModels = map[string]string{
	"ggml-base.en.bin":   whisperBaseURL + "ggml-base.en.bin",
	"ggml-base.bin":      whisperBaseURL + "ggml-base.bin",
	"ggml-small.en.bin":  whisperBaseURL + "ggml-small.en.bin",
	"ggml-small.bin":     whisperBaseURL + "ggml-small.bin",
	"ggml-medium.en.bin": whisperBaseURL + "ggml-medium.en.bin",
	"ggml-medium.bin":    whisperBaseURL + "ggml-medium.bin",
	"ggml-large.bin":     whisperBaseURL + "ggml-large.bin",
	"ggml-large-v2.bin":  whisperBaseURL + "ggml-large-v2.bin",
	"ggml-large-v3.bin":  whisperBaseURL + "ggml-large-v3.bin",
}

// Download fetches url into dest, resuming a previous partial transfer when
// a .part file exists. The .part file is renamed over dest only after a
// clean finish; on failure it stays behind so the next attempt resumes.
func (s *Store) Download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return apierr.Wrap(apierr.Internal, err, "create model dir")
	}
	part := dest + ".part"

	var offset int64
	if st, err := os.Stat(part); err == nil {
		offset = st.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apierr.Wrap(apierr.BadRequest, err, "build download request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/octet-stream, */*")
	if s.hfToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.hfToken)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.UpstreamUnavailable, err, "fetch %s", url)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		flags |= os.O_TRUNC // server ignored the range; start over
	default:
		// A 4xx is not retried at this level; surface it.
		return apierr.New(apierr.UpstreamUnavailable, "fetch %s: status %d", url, resp.StatusCode)
	}

	out, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return apierr.Wrap(apierr.Internal, err, "open part file")
	}
	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	metrics.DownloadBytes.Add(float64(n))
	if copyErr != nil {
		return apierr.Wrap(apierr.UpstreamUnavailable, copyErr, "copy %s", url)
	}
	if closeErr != nil {
		return apierr.Wrap(apierr.Internal, closeErr, "close part file")
	}

	if err := os.Rename(part, dest); err != nil {
		return apierr.Wrap(apierr.Internal, err, "commit %s", dest)
	}
	return nil
}

// DownloadModel fetches a single artifact into models/<name>/ and records a
// model.json metadata file beside it.
func (s *Store) DownloadModel(ctx context.Context, name, url, format string) (string, error) {
	base := filepath.Join(s.modelsRoot, name)
	filename := filenameFromURL(url)
	dest := filepath.Join(base, filename)
	if err := s.Download(ctx, url, dest); err != nil {
		return "", err
	}

	meta := map[string]any{"name": name, "file": filename, "url": url, "format": format}
	raw, _ := json.MarshalIndent(meta, "", "  ")
	if err := os.WriteFile(filepath.Join(base, "model.json"), raw, 0o644); err != nil {
		return "", apierr.Wrap(apierr.Internal, err, "write model.json")
	}
	return dest, nil
}

// DownloadWhisper fetches a whisper.cpp model by canonical file name or alias
// (an alias without extension gets .bin). The artifact lands under
// models/<name-minus-extension>/.
func (s *Store) DownloadWhisper(ctx context.Context, nameOrFile, url string) (string, error) {
	filename := nameOrFile
	if !strings.HasSuffix(filename, ".bin") && !strings.HasSuffix(filename, ".gguf") {
		filename += ".bin"
	}
	if url == "" {
		url = knownWhisperModels[filename]
	}
	if url == "" {
		return "", apierr.New(apierr.BadRequest, "unknown whisper model %q; provide a direct url", nameOrFile)
	}
	dot := strings.LastIndex(filename, ".")
	return s.DownloadModel(ctx, filename[:dot], url, filename[dot+1:])
}

// DownloadPiperVoice fetches a voice and its .json sidecar from the piper
// voice dataset into the piper root. pattern is a dataset-relative path like
// en/en_US/amy/medium/en_US-amy-medium.onnx.
func (s *Store) DownloadPiperVoice(ctx context.Context, pattern string) (string, error) {
	dest := filepath.Join(s.piperRoot, filepath.FromSlash(pattern))
	if err := s.Download(ctx, piperVoicesBaseURL+pattern, dest); err != nil {
		return "", err
	}
	// The sidecar is required by piper at synthesis time; some voices lack
	// one under this naming, so a miss is not fatal.
	if strings.HasSuffix(pattern, ".onnx") {
		s.Download(ctx, piperVoicesBaseURL+pattern+".json", dest+".json")
	}
	return filepath.Dir(dest), nil
}

// hfAPIBase lists snapshot files; overridable in tests.
var hfAPIBase = "https://huggingface.co"

// DownloadParler fetches a model snapshot (every file the registry lists for
// the repo) into models/<modelID>/, the same layout a snapshot fetcher
// produces.
func (s *Store) DownloadParler(ctx context.Context, modelID string) (string, error) {
	files, err := s.listRepoFiles(ctx, modelID)
	if err != nil {
		return "", err
	}
	base := filepath.Join(s.modelsRoot, filepath.FromSlash(modelID))
	for _, f := range files {
		url := fmt.Sprintf("%s/%s/resolve/main/%s", hfAPIBase, modelID, f)
		if err := s.Download(ctx, url, filepath.Join(base, filepath.FromSlash(f))); err != nil {
			return "", err
		}
	}
	return base, nil
}

// listRepoFiles asks the Hugging Face API for the file listing of a repo.
func (s *Store) listRepoFiles(ctx context.Context, modelID string) ([]string, error) {
	url := fmt.Sprintf("%s/api/models/%s", hfAPIBase, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "build listing request")
	}
	req.Header.Set("User-Agent", userAgent)
	if s.hfToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.hfToken)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.UpstreamUnavailable, err, "list %s", modelID)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apierr.New(apierr.UpstreamUnavailable, "list %s: status %d", modelID, resp.StatusCode)
	}

	var listing struct {
		Siblings []struct {
			Rfilename string `json:"rfilename"`
		} `json:"siblings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, apierr.Wrap(apierr.UpstreamUnavailable, err, "decode listing for %s", modelID)
	}
	files := make([]string, 0, len(listing.Siblings))
	for _, sib := range listing.Siblings {
		files = append(files, sib.Rfilename)
	}
	if len(files) == 0 {
		return nil, apierr.New(apierr.NotFound, "no files listed for %s", modelID)
	}
	return files, nil
}

func filenameFromURL(url string) string {
	base := url
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, "/")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return base
}
