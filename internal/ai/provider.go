package ai

import (
	"context"
	"fmt"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// Provider abstracts an AI model that can return structured JSON for a
// given prompt and schema.
type Provider interface {
	// Name returns the provider identifier ("openai", "gemini")
	Name() string

	// ExtractStructured sends the prompts to the model and returns the
	// parsed JSON object. The schema describes the expected output shape.
	ExtractStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any) (map[string]any, error)
}

// NewProvider creates the configured AI provider
func NewProvider(cfg models.AIConfig) (Provider, error) {
	switch cfg.DefaultProvider {
	case "openai", "":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai api key not configured")
		}
		return NewOpenAIProvider(cfg.OpenAI), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini api key not configured")
		}
		return NewGeminiProvider(cfg.Gemini), nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.DefaultProvider)
	}
}
