// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assistant

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/recall-engine/internal/reconcile"
	"github.com/pdiddy/recall-engine/pkg/types"
)

const openaiSystemPrompt = "You are a spaced-repetition card curator. Follow the instructions in the user message exactly and respond with a single JSON object."

// OpenAIBackend selects cards via the OpenAI chat completions API. BaseURL
// is overridable so tests can point the client at a local server.
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIBackend builds a backend from the assistant config.
func NewOpenAIBackend(apiKey string, cfg types.AssistantConfig) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// SelectCards sends the batch selection prompt as a chat completion and
// parses the model's JSON answer.
func (o *OpenAIBackend) SelectCards(ctx context.Context, req reconcile.BatchRequest) (reconcile.BatchResponse, error) {
	prompt, err := renderPrompt(req)
	if err != nil {
		return reconcile.BatchResponse{}, fmt.Errorf("rendering prompt: %w", err)
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openaiSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return reconcile.BatchResponse{}, fmt.Errorf("calling OpenAI API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return reconcile.BatchResponse{}, fmt.Errorf("OpenAI API returned no choices")
	}

	return parseSelection(resp.Choices[0].Message.Content)
}
