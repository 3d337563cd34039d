package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/pkg/llm"
)

// AssistantPrefix is the addressing convention that routes a scroll to the
// assistant instead of the hall. Matching is case-insensitive.
const AssistantPrefix = "@assistant"

const askSystemPrompt = "You are the resident assistant of a themed group chat. " +
	"Answer the user's question concisely. Do not invent chat history."

const summaryPromptHeader = "Summarize the following chat conversation in a few short sentences. " +
	"Mention who said what where it matters.\n\nConversation:\n"

// assistantOverlay turns assistant-addressed scrolls into single
// request/response calls against the language-model provider. Questions and
// answers stay local to this client; nothing is broadcast.
//
// Overlapping requests are permitted; replies land in arrival order. pending
// is kept only so the overlap shows up in the logs.
type assistantOverlay struct {
	provider llm.Provider
	logger   logger.ILogger
	pending  int32
}

func newAssistantOverlay(provider llm.Provider, log logger.ILogger) *assistantOverlay {
	return &assistantOverlay{provider: provider, logger: log}
}

// Matches reports whether content is addressed to the assistant.
func (a *assistantOverlay) Matches(content string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(content)), AssistantPrefix)
}

// Question strips the addressing prefix from an assistant-addressed scroll.
func (a *assistantOverlay) Question(content string) string {
	trimmed := strings.TrimSpace(content)
	return strings.TrimSpace(trimmed[len(AssistantPrefix):])
}

// Ask issues one request for a direct question.
func (a *assistantOverlay) Ask(ctx context.Context, question string) (string, error) {
	n := atomic.AddInt32(&a.pending, 1)
	defer atomic.AddInt32(&a.pending, -1)
	if n > 1 {
		a.logger.Warn("Assistant", "Overlapping assistant requests in flight", map[string]interface{}{"pending": n})
	}

	answer, err := a.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: askSystemPrompt},
		{Role: "user", Content: question},
	})
	if err != nil {
		return "", fmt.Errorf("assistant ask: %w", err)
	}
	return answer, nil
}

// Summarize issues one request over the hall's current message history.
func (a *assistantOverlay) Summarize(ctx context.Context, history []model.Scroll) (string, error) {
	n := atomic.AddInt32(&a.pending, 1)
	defer atomic.AddInt32(&a.pending, -1)
	if n > 1 {
		a.logger.Warn("Assistant", "Overlapping assistant requests in flight", map[string]interface{}{"pending": n})
	}

	var b strings.Builder
	b.WriteString(summaryPromptHeader)
	for _, s := range history {
		if s.Origin == model.OriginAssistant {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", s.AuthorName, s.Content)
	}

	summary, err := a.provider.Generate(ctx, b.String(), llm.WithTemperature(0.3))
	if err != nil {
		return "", fmt.Errorf("assistant summarize: %w", err)
	}
	return summary, nil
}
