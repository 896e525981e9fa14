package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(models.AIConfig{
		OpenAI: models.OpenAIConfig{APIKey: "sk-test"},
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = NewProvider(models.AIConfig{
		DefaultProvider: "gemini",
		Gemini:          models.GeminiConfig{APIKey: "AIza-test"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())
}

func TestNewProviderMissingKey(t *testing.T) {
	_, err := NewProvider(models.AIConfig{DefaultProvider: "openai"})
	assert.Error(t, err)

	_, err = NewProvider(models.AIConfig{DefaultProvider: "gemini"})
	assert.Error(t, err)
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(models.AIConfig{DefaultProvider: "anthropic"})
	assert.Error(t, err)
}
