package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared/constant"

	"github.com/Hardik94/shabdabhav/internal/apierr"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// handleChatCompletions is a compatibility stub. The system hosts no LLM;
// it echoes the last user content in an OpenAI chat-completion shape.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteJSON(w, apierr.New(apierr.BadRequest, "invalid json"))
		return
	}
	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	model := req.Model
	if model == "" {
		model = "stub-echo"
	}

	now := time.Now()
	completion := openai.ChatCompletion{
		ID:      fmt.Sprintf("chatcmpl-%d", now.UnixMilli()),
		Object:  constant.ChatCompletion("chat.completion"),
		Created: now.Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			FinishReason: "stop",
			Message: openai.ChatCompletionMessage{
				Role:    constant.Assistant("assistant"),
				Content: "echo: " + last,
			},
		}},
	}
	writeJSON(w, http.StatusOK, completion)
}
