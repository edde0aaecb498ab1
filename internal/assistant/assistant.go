// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assistant implements the card-selection backends. Each backend
// receives the full candidate batch and returns which blocks become cards,
// with the derived fronts and backs. The reconcile package owns what happens
// to the answer; this package only talks to the models.
package assistant

import (
	"fmt"

	"github.com/pdiddy/recall-engine/internal/reconcile"
	"github.com/pdiddy/recall-engine/pkg/types"
)

// Secret file names looked up per provider.
const (
	anthropicKeyFile = "anthropic-api-key"
	openaiKeyFile    = "openai-api-key"
)

// New builds the backend named by cfg.Provider. The API key comes from the
// config when set, otherwise from the secrets store under the provider's
// key file name.
func New(cfg types.AssistantConfig, secrets map[string]string) (reconcile.Assistant, error) {
	switch cfg.Provider {
	case "", "anthropic":
		key := cfg.APIKey
		if key == "" {
			key = secrets[anthropicKeyFile]
		}
		if key == "" {
			return nil, fmt.Errorf("anthropic assistant requires an API key (secrets file %s)", anthropicKeyFile)
		}
		return &AnthropicBackend{APIKey: key, Model: cfg.Model, MaxTokens: cfg.MaxOutputTokens, MaxRetries: cfg.MaxRetries}, nil
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = secrets[openaiKeyFile]
		}
		if key == "" {
			return nil, fmt.Errorf("openai assistant requires an API key (secrets file %s)", openaiKeyFile)
		}
		return NewOpenAIBackend(key, cfg), nil
	default:
		return nil, fmt.Errorf("unknown assistant provider %q", cfg.Provider)
	}
}
