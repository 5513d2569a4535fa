package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lvhr/airea/internal/api"
	"github.com/lvhr/airea/internal/service"
)

// ChatService runs the retrieval-augmented chat pipeline.
type ChatService interface {
	Chat(ctx context.Context, input service.ChatInput) (*service.ChatOutput, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type ChatResponse struct {
	Response      string `json:"response"`
	Context       string `json:"context,omitempty"`
	DocumentCount int    `json:"document_count"`
	Sequence      int64  `json:"sequence,omitempty"`
	Persisted     bool   `json:"persisted"`
}

// Chat handles POST /chat. Retried requests should resend the same
// X-Idempotency-Key header so the turn is stored exactly once.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	output, err := h.svc.Chat(r.Context(), service.ChatInput{
		ConversationID: req.SessionID,
		Message:        req.Message,
		IdempotencyKey: r.Header.Get("X-Idempotency-Key"),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ChatResponse{
		Response:      output.Response,
		Context:       output.ContextPreview,
		DocumentCount: output.DocumentCount,
		Sequence:      output.Sequence,
		Persisted:     output.Persisted,
	})
}
