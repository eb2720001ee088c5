package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Hardik94/shabdabhav/internal/apierr"
	"github.com/Hardik94/shabdabhav/internal/metrics"
)

// maxUploadBytes bounds a transcription upload.
const maxUploadBytes = 64 << 20

func (s *Server) handleAudioSpeech(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.BadRequest, "read body"))
		return
	}
	if !json.Valid(body) {
		apierr.WriteJSON(w, apierr.New(apierr.BadRequest, "invalid json"))
		return
	}

	start := time.Now()
	reply, err := s.Bridge.PostJSON(r.Context(), "/v1/stream/audio/speech", body)
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	metrics.StageDuration.WithLabelValues("bridge").Observe(time.Since(start).Seconds())
	if reply.Status != http.StatusOK {
		apierr.WriteJSON(w, apierr.New(apierr.UpstreamUnavailable, "%s", engineDetail(reply)))
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	w.Write(reply.Body)
}

func (s *Server) handleAudioTranscriptions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.BadRequest, "invalid multipart form"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.BadRequest, "file required"))
		return
	}
	defer file.Close()

	model := r.FormValue("model")
	if model == "" {
		model = "whisper-1"
	}
	language := r.FormValue("language")
	responseFormat := r.FormValue("response_format")
	if responseFormat == "" {
		responseFormat = "json"
	}
	switch responseFormat {
	case "json", "text", "verbose_json":
	default:
		apierr.WriteJSON(w, apierr.New(apierr.BadRequest, "Unsupported response_format: %s", responseFormat))
		return
	}

	// Uploads are staged through the scratch dir before encoding.
	staged, err := s.stageUpload(file)
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	defer os.Remove(staged)
	audio, err := os.ReadFile(staged)
	if err != nil {
		apierr.WriteJSON(w, apierr.Wrap(apierr.Internal, err, "read staged upload"))
		return
	}

	payload, err := json.Marshal(map[string]any{
		"model":     model,
		"language":  language,
		"audio_b64": base64.StdEncoding.EncodeToString(audio),
	})
	if err != nil {
		apierr.WriteJSON(w, apierr.Wrap(apierr.Internal, err, "marshal engine payload"))
		return
	}

	start := time.Now()
	reply, err := s.Bridge.PostJSON(r.Context(), "/v1/stream/audio/transcriptions", payload)
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	metrics.StageDuration.WithLabelValues("bridge").Observe(time.Since(start).Seconds())
	if reply.Status != http.StatusOK {
		apierr.WriteJSON(w, apierr.New(apierr.UpstreamUnavailable, "%s", engineDetail(reply)))
		return
	}

	var result map[string]any
	if err := json.Unmarshal(reply.Body, &result); err != nil {
		apierr.WriteJSON(w, apierr.Wrap(apierr.UpstreamUnavailable, err, "decode engine response"))
		return
	}
	text, _ := result["text"].(string)
	text = strings.TrimSpace(text)

	switch responseFormat {
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, text)
	case "verbose_json":
		writeJSON(w, http.StatusOK, result)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"text": text})
	}
}

func (s *Server) stageUpload(file io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.Cfg.TmpRoot(), "upload-*.wav")
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, err, "create staging file")
	}
	_, copyErr := io.Copy(tmp, file)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmp.Name())
		return "", apierr.Wrap(apierr.Internal, copyErr, "stage upload")
	}
	if closeErr != nil {
		os.Remove(tmp.Name())
		return "", apierr.Wrap(apierr.Internal, closeErr, "stage upload")
	}
	return tmp.Name(), nil
}

// engineDetail pulls the error field out of a non-200 engine reply, falling
// back to the bare status.
func engineDetail(reply Reply) string {
	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(reply.Body, &decoded); err == nil && decoded.Error != "" {
		return decoded.Error
	}
	return fmt.Sprintf("backend status %d", reply.Status)
}
