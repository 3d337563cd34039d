package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/pkg/llm"
)

func TestAssistantMatches(t *testing.T) {
	a := newAssistantOverlay(&fakeProvider{}, logger.NewNopLogger())

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"plain message", "hello there", false},
		{"exact prefix", "@assistant what time is it", true},
		{"mixed case", "@AsSiStAnT help", true},
		{"leading whitespace", "   @assistant help", true},
		{"prefix mid-sentence", "ask @assistant later", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Matches(tt.content))
		})
	}
}

func TestAssistantQuestionStripsPrefix(t *testing.T) {
	a := newAssistantOverlay(&fakeProvider{}, logger.NewNopLogger())

	assert.Equal(t, "what is the weather", a.Question("@assistant what is the weather"))
	assert.Equal(t, "help", a.Question("  @assistant   help  "))
}

func TestSummarizeSkipsAssistantEntries(t *testing.T) {
	var captured string
	p := &capturingProvider{answer: "a summary"}
	a := newAssistantOverlay(p, logger.NewNopLogger())

	_, err := a.Summarize(context.Background(), []model.Scroll{
		{AuthorName: "Frodo", Content: "the ring is heavy"},
		{AuthorName: model.AssistantAuthorName, Content: "previous answer", Origin: model.OriginAssistant},
		{AuthorName: "Sam", Content: "share the load"},
	})
	assert.NoError(t, err)

	captured = p.lastPrompt
	assert.Contains(t, captured, "Frodo: the ring is heavy")
	assert.Contains(t, captured, "Sam: share the load")
	assert.NotContains(t, captured, "previous answer")
}

type capturingProvider struct {
	answer     string
	lastPrompt string
}

func (p *capturingProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	if len(history) > 0 {
		p.lastPrompt = history[len(history)-1].Content
	}
	return p.answer, nil
}

func (p *capturingProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	p.lastPrompt = prompt
	return p.answer, nil
}
