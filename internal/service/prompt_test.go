package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lvhr/airea/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredFragment(id, title, text string, score float32) domain.ScoredFragment {
	return domain.ScoredFragment{
		Fragment: &domain.Fragment{ID: id, Title: title, Text: text, CreatedAt: "2025-05-01"},
		Score:    score,
	}
}

func testPromptInput() PromptInput {
	return PromptInput{
		Query: "Which towers allow short-term rentals?",
		Retrieval: &domain.RetrievalResult{Fragments: []domain.ScoredFragment{
			scoredFragment("f1", "Palms Place", "Short-term rentals permitted.", 0.91),
			scoredFragment("f2", "Turnberry Towers", "Minimum lease six months.", 0.72),
		}},
		Metadata: domain.CorpusMetadata{
			DocumentCount: 9550,
			FragmentCount: 31204,
			CorpusDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		History: []*domain.ConversationTurn{
			{UserMessage: "hello", Response: "Hi, I'm AIREA."},
		},
		Today: time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC),
	}
}

func TestAssembler_Assemble_IsDeterministic(t *testing.T) {
	assembler := NewAssembler(AssemblerConfig{})
	in := testPromptInput()

	first := assembler.Assemble(in)
	second := assembler.Assemble(in)
	assert.Equal(t, first, second)
	assert.Equal(t, first.SystemPrompt, second.SystemPrompt)
}

func TestAssembler_Assemble_CorpusMetadataComesFromInput(t *testing.T) {
	assembler := NewAssembler(AssemblerConfig{})
	prompt := assembler.Assemble(testPromptInput())

	assert.Contains(t, prompt.SystemPrompt, "Total documents indexed: 9550")
	assert.Contains(t, prompt.SystemPrompt, "Knowledge corpus date: 2025-06-01")
	assert.Contains(t, prompt.SystemPrompt, "Current date: 2025-08-25")
	assert.Equal(t, 9550, prompt.DocumentCount)
}

func TestAssembler_Assemble_FragmentsInRelevanceOrder(t *testing.T) {
	assembler := NewAssembler(AssemblerConfig{})
	prompt := assembler.Assemble(testPromptInput())

	assert.Equal(t, 2, prompt.FragmentsUsed)
	assert.Contains(t, prompt.ContextText, "[Palms Place - 2025-05-01]")
	assert.Less(t,
		strings.Index(prompt.ContextText, "Palms Place"),
		strings.Index(prompt.ContextText, "Turnberry Towers"))
}

func TestAssembler_Assemble_EmptyRetrieval(t *testing.T) {
	assembler := NewAssembler(AssemblerConfig{})
	in := testPromptInput()
	in.Retrieval = &domain.RetrievalResult{}
	in.History = nil

	prompt := assembler.Assemble(in)
	assert.Equal(t, 0, prompt.FragmentsUsed)
	assert.Empty(t, prompt.ContextText)
	assert.Contains(t, prompt.SystemPrompt, "0 documents")
	assert.Contains(t, prompt.SystemPrompt, "No relevant documents matched this query.")
}

func TestAssembler_Assemble_QueryIsNeverTruncated(t *testing.T) {
	assembler := NewAssembler(AssemblerConfig{MaxContextChars: 100})
	in := testPromptInput()
	in.Query = strings.Repeat("very long question ", 500)

	prompt := assembler.Assemble(in)
	assert.Equal(t, in.Query, prompt.UserMessage)
}

func TestAssembler_Assemble_DropsOldestHistoryFirst(t *testing.T) {
	in := testPromptInput()
	in.Retrieval = &domain.RetrievalResult{}
	in.History = nil
	for i := 0; i < 6; i++ {
		in.History = append(in.History, &domain.ConversationTurn{
			UserMessage: fmt.Sprintf("question %d %s", i, strings.Repeat("x", 40)),
			Response:    fmt.Sprintf("answer %d", i),
		})
	}

	// Budget fits only the newest few turns.
	assembler := NewAssembler(AssemblerConfig{MaxContextChars: 200})
	prompt := assembler.Assemble(in)

	require.Greater(t, prompt.HistoryUsed, 0)
	require.Less(t, prompt.HistoryUsed, 6)
	assert.NotContains(t, prompt.SystemPrompt, "question 0")
	assert.Contains(t, prompt.SystemPrompt, "answer 5")

	// Surviving turns stay in chronological order.
	assert.Less(t,
		strings.Index(prompt.SystemPrompt, "answer 4"),
		strings.Index(prompt.SystemPrompt, "answer 5"))
}

func TestAssembler_Assemble_DropsLowestRelevanceFragmentsBeforeHigher(t *testing.T) {
	in := testPromptInput()
	in.History = nil
	in.Retrieval = &domain.RetrievalResult{Fragments: []domain.ScoredFragment{
		scoredFragment("f1", "Best", strings.Repeat("a", 80), 0.9),
		scoredFragment("f2", "Middle", strings.Repeat("b", 80), 0.6),
		scoredFragment("f3", "Worst", strings.Repeat("c", 80), 0.3),
	}}

	assembler := NewAssembler(AssemblerConfig{MaxContextChars: 220})
	prompt := assembler.Assemble(in)

	assert.Equal(t, 2, prompt.FragmentsUsed)
	assert.Contains(t, prompt.ContextText, "Best")
	assert.Contains(t, prompt.ContextText, "Middle")
	assert.NotContains(t, prompt.ContextText, "Worst")
}

func TestAssembler_Assemble_ClipsOversizedFragmentText(t *testing.T) {
	in := testPromptInput()
	in.History = nil
	in.Retrieval = &domain.RetrievalResult{Fragments: []domain.ScoredFragment{
		scoredFragment("f1", "Big", strings.Repeat("z", 5000), 0.9),
	}}

	assembler := NewAssembler(AssemblerConfig{MaxFragmentChars: 100})
	prompt := assembler.Assemble(in)

	require.Equal(t, 1, prompt.FragmentsUsed)
	assert.Contains(t, prompt.ContextText, strings.Repeat("z", 100))
	assert.NotContains(t, prompt.ContextText, strings.Repeat("z", 101))
}

func TestAssembler_Assemble_HistoryCappedByMaxTurns(t *testing.T) {
	in := testPromptInput()
	in.Retrieval = &domain.RetrievalResult{}
	in.History = nil
	for i := 0; i < 10; i++ {
		in.History = append(in.History, &domain.ConversationTurn{
			UserMessage: fmt.Sprintf("q%d", i),
			Response:    fmt.Sprintf("a%d", i),
		})
	}

	assembler := NewAssembler(AssemblerConfig{MaxHistoryTurns: 3})
	prompt := assembler.Assemble(in)

	assert.Equal(t, 3, prompt.HistoryUsed)
	assert.NotContains(t, prompt.SystemPrompt, "q6\n")
	assert.Contains(t, prompt.SystemPrompt, "q9")
}
