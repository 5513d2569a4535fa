package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lvhr/airea/internal/api/handlers"
	"github.com/lvhr/airea/internal/domain"
	"github.com/lvhr/airea/internal/service"
	"github.com/lvhr/airea/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatService struct{}

func (stubChatService) Chat(ctx context.Context, input service.ChatInput) (*service.ChatOutput, error) {
	return &service.ChatOutput{Response: "Hi.", DocumentCount: 9550, Persisted: true}, nil
}

type stubRecorder struct{}

func (stubRecorder) Append(ctx context.Context, turn *domain.ConversationTurn) (int64, error) {
	return 1, nil
}

func (stubRecorder) ListRecent(ctx context.Context, conversationID string, limit int) ([]*domain.ConversationTurn, error) {
	return nil, nil
}

type stubRefresher struct{}

func (stubRefresher) Refresh(ctx context.Context) error { return nil }

type stubProvider struct {
	generation *snapshot.Generation
}

func (p stubProvider) Active() *snapshot.Generation { return p.generation }

func newTestRouter(apiKey string) http.Handler {
	provider := stubProvider{&snapshot.Generation{
		Snapshot: &domain.Snapshot{
			ID:          "snap-1",
			InstalledAt: time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC),
			Metadata: domain.CorpusMetadata{
				DocumentCount: 9550,
				CorpusDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			},
		},
	}}

	return NewRouter(RouterConfig{
		APIKey:              apiKey,
		ChatHandler:         handlers.NewChatHandler(stubChatService{}),
		HealthHandler:       handlers.NewHealthHandler(provider),
		ConversationHandler: handlers.NewConversationHandler(stubRecorder{}),
		SnapshotHandler:     handlers.NewSnapshotHandler(stubRefresher{}, provider),
	})
}

func TestRouter_HealthIsOpen(t *testing.T) {
	router := newTestRouter("secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_documents":9550`)
}

func TestRouter_ChatRequiresAPIKey(t *testing.T) {
	router := newTestRouter("secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_OpenWhenNoAPIKeyConfigured(t *testing.T) {
	router := newTestRouter("")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ConversationRoute(t *testing.T) {
	router := newTestRouter("")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/sess-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"conversation_id":"sess-1"`)
}

func TestRouter_SnapshotRefreshRoute(t *testing.T) {
	router := newTestRouter("")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/snapshot/refresh", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"snapshot_id":"snap-1"`)
}
