package ai

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

// OpenAIProvider implements Provider using the OpenAI chat completions API.
// Structured output is requested through a forced tool call so the model
// cannot reply with prose.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI provider
func NewOpenAIProvider(cfg models.OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// ExtractStructured calls the chat API with a forced function tool whose
// parameters are the extraction schema, then parses the tool arguments.
func (p *OpenAIProvider) ExtractStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any) (map[string]any, error) {
	fn := &openai.FunctionDefinition{
		Name:        "record_extraction",
		Description: "Record the fields extracted from the document",
		Parameters:  schema,
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Tools: []openai.Tool{
			{Type: openai.ToolTypeFunction, Function: fn},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: fn.Name},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("openai returned no tool call")
	}

	args := resp.Choices[0].Message.ToolCalls[0].Function.Arguments
	data, err := parseJSONObject(args)
	if err != nil {
		return nil, fmt.Errorf("parse openai tool arguments: %w", err)
	}
	return data, nil
}

// parseJSONObject parses a JSON object from model output, tolerating the
// markdown code fences some models wrap around JSON.
func parseJSONObject(s string) (map[string]any, error) {
	cleaned := stripCodeFences(s)
	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	return data, nil
}
