package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lvhr/airea/internal/domain"
	"github.com/lvhr/airea/internal/repository"
	"github.com/lvhr/airea/internal/telemetry"
)

// contextPreviewChars bounds the context echo returned to API callers.
const contextPreviewChars = 500

// CompletionProvider is the black-box completion capability: given an
// assembled prompt and the user message, return text.
type CompletionProvider interface {
	GenerateResponse(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// ConversationRecorder persists turns and reads back recent history.
type ConversationRecorder interface {
	Append(ctx context.Context, turn *domain.ConversationTurn) (int64, error)
	ListRecent(ctx context.Context, conversationID string, limit int) ([]*domain.ConversationTurn, error)
}

// RetrievalLogger stores retrieval logs. Logging is best effort and never
// fails a request.
type RetrievalLogger interface {
	LogRetrieval(ctx context.Context, entry repository.RetrievalLogEntry) error
}

// Retriever is the retrieval step of the pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (*RetrievalOutput, error)
}

// ChatInput is one chat request.
type ChatInput struct {
	ConversationID string
	Message        string
	// IdempotencyKey dedupes retried requests; generated when empty.
	IdempotencyKey string
}

// ChatOutput is the pipeline result for one request.
type ChatOutput struct {
	Response       string
	ContextPreview string
	DocumentCount  int
	Sequence       int64
	// Persisted is false when the durable store was unavailable; the
	// response is still returned, durability is degraded.
	Persisted bool
}

// ChatConfig controls chat pipeline behavior.
type ChatConfig struct {
	HistoryTurns int
}

// ChatService runs the per-request pipeline: retrieve, assemble, complete,
// record.
type ChatService struct {
	retriever Retriever
	assembler *Assembler
	provider  CompletionProvider
	recorder  ConversationRecorder
	logs      RetrievalLogger
	cfg       ChatConfig
	now       func() time.Time
}

// NewChatService creates a ChatService. logs may be nil to disable
// retrieval logging.
func NewChatService(
	retriever Retriever,
	assembler *Assembler,
	provider CompletionProvider,
	recorder ConversationRecorder,
	logs RetrievalLogger,
	cfg ChatConfig,
) *ChatService {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 5
	}
	return &ChatService{
		retriever: retriever,
		assembler: assembler,
		provider:  provider,
		recorder:  recorder,
		logs:      logs,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Chat answers one user message grounded in the active snapshot and records
// the turn. Persistence failure degrades durability, not availability: the
// generated response is returned either way, and the failure is surfaced to
// telemetry.
func (s *ChatService) Chat(ctx context.Context, input ChatInput) (*ChatOutput, error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, domain.ErrEmptyQuery
	}
	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID = "default"
	}
	idempotencyKey := input.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	ctx, span := telemetry.StartSpan(ctx, "ChatService.Chat", telemetry.SpanAttributes{
		ConversationID: conversationID,
		Operation:      "chat",
	})
	defer span.End()

	history, err := s.recorder.ListRecent(ctx, conversationID, s.cfg.HistoryTurns)
	if err != nil {
		// Missing history degrades context, not the request.
		log.Printf("chat: failed to load history for %s: %v", conversationID, err)
		history = nil
	}

	retrievalStart := s.now()
	retrieved, err := s.retriever.Retrieve(ctx, input.Message, 0)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	retrievalDuration := s.now().Sub(retrievalStart)
	retrieval, snap := retrieved.Result, retrieved.Snapshot

	prompt := s.assembler.Assemble(PromptInput{
		Query:     input.Message,
		Retrieval: retrieval,
		Metadata:  snap.Metadata,
		History:   history,
		Today:     s.now(),
	})

	response, err := s.provider.GenerateResponse(ctx, prompt.SystemPrompt, prompt.UserMessage)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	output := &ChatOutput{
		Response:       response,
		ContextPreview: preview(prompt.ContextText),
		DocumentCount:  prompt.DocumentCount,
		Persisted:      true,
	}

	turn := &domain.ConversationTurn{
		ConversationID: conversationID,
		IdempotencyKey: idempotencyKey,
		UserMessage:    input.Message,
		ContextRef:     contextRef(snap, retrieval),
		Response:       response,
		CreatedAt:      s.now().UTC(),
	}
	seq, err := s.recorder.Append(ctx, turn)
	if err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			log.Printf("chat: failed to persist turn for %s: %v", conversationID, err)
			telemetry.CaptureError(ctx, err)
			output.Persisted = false
		} else {
			span.SetError(err)
			return nil, err
		}
	} else {
		output.Sequence = seq
	}

	s.logRetrieval(ctx, conversationID, input.Message, retrieved, retrievalDuration)

	return output, nil
}

func (s *ChatService) logRetrieval(ctx context.Context, conversationID, query string, retrieved *RetrievalOutput, duration time.Duration) {
	if s.logs == nil {
		return
	}

	ids := make([]string, 0, len(retrieved.Result.Fragments))
	for _, scored := range retrieved.Result.Fragments {
		ids = append(ids, scored.Fragment.ID)
	}

	entry := repository.RetrievalLogEntry{
		ConversationID: conversationID,
		SnapshotID:     retrieved.Snapshot.ID,
		Query:          query,
		QueryEmbedding: retrieved.QueryEmbedding,
		FragmentIDs:    ids,
		ResultCount:    len(ids),
		DurationMs:     duration.Milliseconds(),
	}
	if err := s.logs.LogRetrieval(ctx, entry); err != nil {
		log.Printf("chat: failed to log retrieval: %v", err)
	}
}

// contextRef is the stored reference to the context a response was grounded
// in: the snapshot generation plus the fragment identifiers used.
func contextRef(snap *domain.Snapshot, retrieval *domain.RetrievalResult) string {
	ids := make([]string, 0, len(retrieval.Fragments))
	for _, scored := range retrieval.Fragments {
		ids = append(ids, scored.Fragment.ID)
	}
	ref, _ := json.Marshal(map[string]any{
		"snapshot_id":  snap.ID,
		"fragment_ids": ids,
	})
	return string(ref)
}

func preview(text string) string {
	if text == "" {
		return "No context used."
	}
	if len(text) <= contextPreviewChars {
		return text
	}
	// Clip on a rune boundary so a multi-byte character is never split.
	cut := contextPreviewChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
