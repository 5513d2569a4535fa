package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lvhr/airea/internal/api"
	"github.com/lvhr/airea/internal/service"
)

type ConversationHandler struct {
	recorder service.ConversationRecorder
}

func NewConversationHandler(recorder service.ConversationRecorder) *ConversationHandler {
	return &ConversationHandler{recorder: recorder}
}

type TurnResponse struct {
	Sequence    int64  `json:"sequence"`
	UserMessage string `json:"user_message"`
	Response    string `json:"response"`
	CreatedAt   string `json:"created_at"`
}

type ConversationResponse struct {
	ConversationID string          `json:"conversation_id"`
	Turns          []*TurnResponse `json:"turns"`
}

// ListRecent handles GET /conversations/{id}, returning the most recent
// turns oldest first.
func (h *ConversationHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if conversationID == "" {
		api.Error(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	turns, err := h.recorder.ListRecent(r.Context(), conversationID, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := ConversationResponse{
		ConversationID: conversationID,
		Turns:          make([]*TurnResponse, 0, len(turns)),
	}
	for _, turn := range turns {
		resp.Turns = append(resp.Turns, &TurnResponse{
			Sequence:    turn.Sequence,
			UserMessage: turn.UserMessage,
			Response:    turn.Response,
			CreatedAt:   turn.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	api.Success(w, http.StatusOK, resp)
}
