package factory

import (
	"fmt"

	"realm-chat-core/pkg/llm"
	"realm-chat-core/pkg/llm/huggingface"
	"realm-chat-core/pkg/llm/ollama"
)

func NewProvider(providerType, modelName, ollamaBaseURL, huggingFaceKey string) (llm.Provider, error) {
	switch providerType {
	case "ollama":
		if ollamaBaseURL == "" {
			ollamaBaseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(ollamaBaseURL, modelName), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(huggingFaceKey, "", modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
