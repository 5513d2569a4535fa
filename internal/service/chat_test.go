package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/lvhr/airea/internal/domain"
	"github.com/lvhr/airea/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRetriever is a mock implementation of Retriever
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, k int) (*RetrievalOutput, error) {
	args := m.Called(ctx, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RetrievalOutput), args.Error(1)
}

// MockCompletionProvider is a mock implementation of CompletionProvider
type MockCompletionProvider struct {
	mock.Mock
}

func (m *MockCompletionProvider) GenerateResponse(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	args := m.Called(ctx, systemPrompt, userMessage)
	return args.String(0), args.Error(1)
}

// MockConversationRecorder is a mock implementation of ConversationRecorder
type MockConversationRecorder struct {
	mock.Mock
}

func (m *MockConversationRecorder) Append(ctx context.Context, turn *domain.ConversationTurn) (int64, error) {
	args := m.Called(ctx, turn)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConversationRecorder) ListRecent(ctx context.Context, conversationID string, limit int) ([]*domain.ConversationTurn, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ConversationTurn), args.Error(1)
}

// MockRetrievalLogger is a mock implementation of RetrievalLogger
type MockRetrievalLogger struct {
	mock.Mock
}

func (m *MockRetrievalLogger) LogRetrieval(ctx context.Context, entry repository.RetrievalLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func testRetrievalOutput() *RetrievalOutput {
	return &RetrievalOutput{
		Result: &domain.RetrievalResult{Fragments: []domain.ScoredFragment{
			{Fragment: &domain.Fragment{ID: "f1", Title: "Palms Place", Text: "Short-term rentals permitted."}, Score: 0.9},
		}},
		Snapshot: &domain.Snapshot{
			ID: "snap-1",
			Metadata: domain.CorpusMetadata{
				DocumentCount: 9550,
				CorpusDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		QueryEmbedding: []float32{1, 0},
	}
}

func newTestChatService(retriever *MockRetriever, provider *MockCompletionProvider,
	recorder *MockConversationRecorder, logs *MockRetrievalLogger) *ChatService {
	var logger RetrievalLogger
	if logs != nil {
		logger = logs
	}
	return NewChatService(retriever, NewAssembler(AssemblerConfig{}), provider, recorder, logger, ChatConfig{})
}

func TestChatService_Chat_Success(t *testing.T) {
	retriever := new(MockRetriever)
	provider := new(MockCompletionProvider)
	recorder := new(MockConversationRecorder)
	logs := new(MockRetrievalLogger)

	recorder.On("ListRecent", mock.Anything, "sess-1", 5).Return([]*domain.ConversationTurn{}, nil)
	retriever.On("Retrieve", mock.Anything, "rentals?", 0).Return(testRetrievalOutput(), nil)
	provider.On("GenerateResponse", mock.Anything, mock.Anything, "rentals?").Return("I found 1 documents.", nil)
	recorder.On("Append", mock.Anything, mock.MatchedBy(func(turn *domain.ConversationTurn) bool {
		return turn.ConversationID == "sess-1" &&
			turn.IdempotencyKey == "idem-1" &&
			turn.UserMessage == "rentals?" &&
			turn.Response == "I found 1 documents."
	})).Return(int64(7), nil)
	logs.On("LogRetrieval", mock.Anything, mock.MatchedBy(func(entry repository.RetrievalLogEntry) bool {
		return entry.ConversationID == "sess-1" &&
			entry.SnapshotID == "snap-1" &&
			entry.ResultCount == 1 &&
			len(entry.QueryEmbedding) == 2
	})).Return(nil)

	svc := newTestChatService(retriever, provider, recorder, logs)
	out, err := svc.Chat(context.Background(), ChatInput{
		ConversationID: "sess-1",
		Message:        "rentals?",
		IdempotencyKey: "idem-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "I found 1 documents.", out.Response)
	assert.Equal(t, int64(7), out.Sequence)
	assert.True(t, out.Persisted)
	assert.Equal(t, 9550, out.DocumentCount)
	assert.Contains(t, out.ContextPreview, "Palms Place")

	retriever.AssertExpectations(t)
	provider.AssertExpectations(t)
	recorder.AssertExpectations(t)
	logs.AssertExpectations(t)
}

func TestChatService_Chat_EmptyMessage(t *testing.T) {
	svc := newTestChatService(new(MockRetriever), new(MockCompletionProvider), new(MockConversationRecorder), nil)
	_, err := svc.Chat(context.Background(), ChatInput{Message: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestChatService_Chat_DefaultsConversationAndIdempotencyKey(t *testing.T) {
	retriever := new(MockRetriever)
	provider := new(MockCompletionProvider)
	recorder := new(MockConversationRecorder)

	recorder.On("ListRecent", mock.Anything, "default", 5).Return(nil, nil)
	retriever.On("Retrieve", mock.Anything, "hello", 0).Return(testRetrievalOutput(), nil)
	provider.On("GenerateResponse", mock.Anything, mock.Anything, "hello").Return("Hi.", nil)
	recorder.On("Append", mock.Anything, mock.MatchedBy(func(turn *domain.ConversationTurn) bool {
		return turn.ConversationID == "default" && turn.IdempotencyKey != ""
	})).Return(int64(1), nil)

	svc := newTestChatService(retriever, provider, recorder, nil)
	out, err := svc.Chat(context.Background(), ChatInput{Message: "hello"})

	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Sequence)
	recorder.AssertExpectations(t)
}

func TestChatService_Chat_RetrievalFailure(t *testing.T) {
	retriever := new(MockRetriever)
	recorder := new(MockConversationRecorder)

	recorder.On("ListRecent", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrNoActiveSnapshot)

	svc := newTestChatService(retriever, new(MockCompletionProvider), recorder, nil)
	_, err := svc.Chat(context.Background(), ChatInput{Message: "hello"})
	assert.ErrorIs(t, err, domain.ErrNoActiveSnapshot)
}

func TestChatService_Chat_ProviderFailure(t *testing.T) {
	retriever := new(MockRetriever)
	provider := new(MockCompletionProvider)
	recorder := new(MockConversationRecorder)

	recorder.On("ListRecent", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(testRetrievalOutput(), nil)
	provider.On("GenerateResponse", mock.Anything, mock.Anything, mock.Anything).Return("", domain.ErrProvider)

	svc := newTestChatService(retriever, provider, recorder, nil)
	_, err := svc.Chat(context.Background(), ChatInput{Message: "hello"})
	assert.ErrorIs(t, err, domain.ErrProvider)
	recorder.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestChatService_Chat_PersistenceFailureDegradesDurabilityOnly(t *testing.T) {
	retriever := new(MockRetriever)
	provider := new(MockCompletionProvider)
	recorder := new(MockConversationRecorder)

	recorder.On("ListRecent", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(testRetrievalOutput(), nil)
	provider.On("GenerateResponse", mock.Anything, mock.Anything, mock.Anything).Return("Hi.", nil)
	recorder.On("Append", mock.Anything, mock.Anything).
		Return(int64(0), domain.ErrPersistence)

	svc := newTestChatService(retriever, provider, recorder, nil)
	out, err := svc.Chat(context.Background(), ChatInput{Message: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "Hi.", out.Response)
	assert.False(t, out.Persisted)
	assert.Zero(t, out.Sequence)
}

func TestChatService_Chat_NonPersistenceAppendFailureIsFatal(t *testing.T) {
	retriever := new(MockRetriever)
	provider := new(MockCompletionProvider)
	recorder := new(MockConversationRecorder)

	recorder.On("ListRecent", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(testRetrievalOutput(), nil)
	provider.On("GenerateResponse", mock.Anything, mock.Anything, mock.Anything).Return("Hi.", nil)
	recorder.On("Append", mock.Anything, mock.Anything).
		Return(int64(0), errors.New("turn validation failed"))

	svc := newTestChatService(retriever, provider, recorder, nil)
	_, err := svc.Chat(context.Background(), ChatInput{Message: "hello"})
	assert.ErrorContains(t, err, "turn validation failed")
}

func TestChatService_Chat_HistoryFailureDegradesContextOnly(t *testing.T) {
	retriever := new(MockRetriever)
	provider := new(MockCompletionProvider)
	recorder := new(MockConversationRecorder)

	recorder.On("ListRecent", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.ErrPersistence)
	retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(testRetrievalOutput(), nil)
	provider.On("GenerateResponse", mock.Anything, mock.Anything, mock.Anything).Return("Hi.", nil)
	recorder.On("Append", mock.Anything, mock.Anything).Return(int64(1), nil)

	svc := newTestChatService(retriever, provider, recorder, nil)
	out, err := svc.Chat(context.Background(), ChatInput{Message: "hello"})

	require.NoError(t, err)
	assert.True(t, out.Persisted)
}

func TestChatService_Chat_LoggerFailureDoesNotFailRequest(t *testing.T) {
	retriever := new(MockRetriever)
	provider := new(MockCompletionProvider)
	recorder := new(MockConversationRecorder)
	logs := new(MockRetrievalLogger)

	recorder.On("ListRecent", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	retriever.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(testRetrievalOutput(), nil)
	provider.On("GenerateResponse", mock.Anything, mock.Anything, mock.Anything).Return("Hi.", nil)
	recorder.On("Append", mock.Anything, mock.Anything).Return(int64(1), nil)
	logs.On("LogRetrieval", mock.Anything, mock.Anything).Return(errors.New("log table missing"))

	svc := newTestChatService(retriever, provider, recorder, logs)
	out, err := svc.Chat(context.Background(), ChatInput{Message: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "Hi.", out.Response)
}

func TestPreview_ClipsOnRuneBoundary(t *testing.T) {
	// One ASCII byte then two-byte runes, so the byte at the clip limit is a
	// continuation byte and a naive byte-index slice would split a rune.
	text := "x" + strings.Repeat("é", contextPreviewChars)

	got := preview(text)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, contextPreviewChars-1, len(got))
	assert.Equal(t, 1+(contextPreviewChars-2)/2, utf8.RuneCountInString(got))

	assert.Equal(t, "short", preview("short"))
	assert.Equal(t, "No context used.", preview(""))
}
