package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/lvhr/airea/internal/domain"
)

const personaPrompt = `You are AIREA, the assistant built into the LVHR platform for Las Vegas luxury high-rise real estate. You answer from the knowledge base you are given, not from assumptions.

WHEN RECEIVING SEARCH RESULTS:
- Explicitly state "I found [X] documents matching [search term]"
- List relevant documents with their titles and dates
- Quote directly from documents rather than paraphrasing
- If context is truncated, mention there are more results available
- Be specific about what you can access versus what you cannot

YOUR APPROACH:
- Acknowledge when you are uncertain rather than guessing
- Reference specific documents when answering questions
- Be direct and honest about capabilities and limitations`

// PromptInput carries everything the assembler needs. Dynamic values like
// the corpus document count and the current date arrive here as data; the
// assembler never reads ambient state.
type PromptInput struct {
	Query     string
	Retrieval *domain.RetrievalResult
	Metadata  domain.CorpusMetadata
	// History holds prior turns of the conversation, oldest first.
	History []*domain.ConversationTurn
	Today   time.Time
}

// PromptContext is the assembled context for one completion call.
type PromptContext struct {
	SystemPrompt  string
	UserMessage   string
	ContextText   string
	DocumentCount int
	FragmentsUsed int
	HistoryUsed   int
}

// AssemblerConfig bounds the assembled context size.
type AssemblerConfig struct {
	// MaxContextChars bounds the combined history and fragment text.
	MaxContextChars int
	// MaxFragmentChars clips a single fragment's text.
	MaxFragmentChars int
	// MaxHistoryTurns caps how many prior turns are considered at all.
	MaxHistoryTurns int
}

// DefaultAssemblerConfig returns the default assembler bounds.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		MaxContextChars:  24000,
		MaxFragmentChars: 2000,
		MaxHistoryTurns:  10,
	}
}

// Assembler combines retrieved fragments, corpus metadata, and conversation
// history into the context sent to the completion provider. Assemble is a
// pure function: identical inputs produce byte-identical output.
type Assembler struct {
	cfg AssemblerConfig
}

// NewAssembler creates an Assembler.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultAssemblerConfig().MaxContextChars
	}
	if cfg.MaxFragmentChars <= 0 {
		cfg.MaxFragmentChars = DefaultAssemblerConfig().MaxFragmentChars
	}
	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = DefaultAssemblerConfig().MaxHistoryTurns
	}
	return &Assembler{cfg: cfg}
}

// Assemble builds the prompt context. When the size budget is exceeded, the
// oldest history turns are dropped first, then the lowest-relevance
// fragments; the current user query is never truncated.
func (a *Assembler) Assemble(in PromptInput) PromptContext {
	budget := a.cfg.MaxContextChars

	fragmentsText, fragmentsUsed, fragmentsBytes := a.renderFragments(in.Retrieval, budget)
	historyText, historyUsed := a.renderHistory(in.History, budget-fragmentsBytes)

	var sb strings.Builder
	sb.WriteString(personaPrompt)
	sb.WriteString("\n\nYOUR KNOWLEDGE BASE:\n")
	fmt.Fprintf(&sb, "- Total documents indexed: %d\n", in.Metadata.DocumentCount)
	fmt.Fprintf(&sb, "- Knowledge corpus date: %s\n", in.Metadata.CorpusDate.UTC().Format("2006-01-02"))
	fmt.Fprintf(&sb, "- Current date: %s\n", in.Today.UTC().Format("2006-01-02"))

	if historyUsed > 0 {
		sb.WriteString("\nRECENT CONVERSATION:\n")
		sb.WriteString(historyText)
	}

	sb.WriteString("\nRELEVANT DOCUMENTS FOUND (")
	if fragmentsUsed == 0 {
		sb.WriteString("0 documents):\nNo relevant documents matched this query.")
	} else {
		fmt.Fprintf(&sb, "%d documents):\n%s", fragmentsUsed, fragmentsText)
	}

	return PromptContext{
		SystemPrompt:  sb.String(),
		UserMessage:   in.Query,
		ContextText:   fragmentsText,
		DocumentCount: in.Metadata.DocumentCount,
		FragmentsUsed: fragmentsUsed,
		HistoryUsed:   historyUsed,
	}
}

// renderFragments formats fragments in relevance order, stopping once the
// budget is exhausted so the lowest-relevance fragments drop first.
func (a *Assembler) renderFragments(retrieval *domain.RetrievalResult, budget int) (string, int, int) {
	if retrieval.Empty() {
		return "", 0, 0
	}

	var parts []string
	used := 0
	total := 0
	for _, scored := range retrieval.Fragments {
		title := scored.Fragment.Title
		if title == "" {
			title = "Untitled"
		}
		text := scored.Fragment.Text
		if len(text) > a.cfg.MaxFragmentChars {
			text = text[:a.cfg.MaxFragmentChars]
		}
		part := fmt.Sprintf("[%s - %s]\n%s", title, scored.Fragment.CreatedAt, text)

		cost := len(part)
		if len(parts) > 0 {
			cost += len("\n\n---\n\n")
		}
		if total+cost > budget {
			break
		}
		parts = append(parts, part)
		total += cost
		used++
	}

	return strings.Join(parts, "\n\n---\n\n"), used, total
}

// renderHistory keeps the newest turns that fit the remaining budget, then
// emits them oldest first, so the oldest turns are the ones dropped.
func (a *Assembler) renderHistory(history []*domain.ConversationTurn, budget int) (string, int) {
	if len(history) == 0 || budget <= 0 {
		return "", 0
	}
	if len(history) > a.cfg.MaxHistoryTurns {
		history = history[len(history)-a.cfg.MaxHistoryTurns:]
	}

	var kept []string
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		line := fmt.Sprintf("User: %s\nAIREA: %s\n", turn.UserMessage, turn.Response)
		if total+len(line) > budget {
			break
		}
		kept = append(kept, line)
		total += len(line)
	}

	var sb strings.Builder
	for i := len(kept) - 1; i >= 0; i-- {
		sb.WriteString(kept[i])
	}
	return sb.String(), len(kept)
}
