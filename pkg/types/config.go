// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that marshals as a "30s"-style string in
// both YAML and JSON.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return d.parse(raw)
}

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.parse(raw)
}

func (d *Duration) parse(raw string) error {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// CourseConfig maps a set of source paths to a destination deck.
type CourseConfig struct {
	// Paths are glob patterns for .tex files, relative to the repository
	// root. ** matches across directory boundaries.
	Paths []string `json:"paths" yaml:"paths"`

	// Deck is the destination deck name in the sync backend.
	Deck string `json:"deck" yaml:"deck"`

	// Priority weights this course in batch-assisted selection; higher
	// numbers are considered first against the daily quota (default 1).
	Priority int `json:"priority" yaml:"priority"`
}

// AssistantConfig holds settings for the card-selection assistant backend.
type AssistantConfig struct {
	// Provider selects the backend: "anthropic", "openai", or "none".
	Provider string `json:"provider" yaml:"provider"`

	// Model is the model identifier for the provider.
	Model string `json:"model" yaml:"model"`

	// APIKey authenticates against the provider. Usually left empty here
	// and supplied through .secrets/ instead.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the provider's default endpoint, for proxies and
	// OpenAI-compatible local servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Enabled turns the batch-assisted selection path on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Temperature is the sampling temperature for generation.
	Temperature float32 `json:"temperature" yaml:"temperature"`

	// MaxOutputTokens caps the response size.
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`

	// MaxRetries is the number of retry attempts for failed calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MaxCardsPerBlock caps how many cards the assistant may derive from
	// one block (default 3).
	MaxCardsPerBlock int `json:"max_cards_per_block" yaml:"max_cards_per_block"`

	// ParaphraseStrength ranges 0 (literal) to 1 (strongly rephrased).
	ParaphraseStrength float64 `json:"paraphrase_strength" yaml:"paraphrase_strength"`

	// NeighborContextLines is the total surrounding lines sent with each
	// block, split evenly above and below (default 20).
	NeighborContextLines int `json:"neighbor_context_lines" yaml:"neighbor_context_lines"`
}

// SyncConfig holds settings for the AnkiConnect sync backend.
type SyncConfig struct {
	// URL is the AnkiConnect endpoint (default http://127.0.0.1:8765).
	URL string `json:"url" yaml:"url"`

	// Timeout is the per-request timeout (default 30s).
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Manifest is the per-repository configuration loaded from recall.yaml.
type Manifest struct {
	// Courses maps course names to path patterns and decks.
	Courses map[string]CourseConfig `json:"courses" yaml:"courses"`

	// Kinds lists the LaTeX environment names to extract
	// (default: definition, theorem, lemma, proposition, corollary,
	// remark, example).
	Kinds []string `json:"kinds" yaml:"kinds"`

	// DailyNewLimit is the global quota the assistant must stay under
	// when selecting blocks (default 8).
	DailyNewLimit int `json:"daily_new_limit" yaml:"daily_new_limit"`

	// Assistant configures the batch-assisted selection path.
	Assistant AssistantConfig `json:"assistant" yaml:"assistant"`

	// Sync configures the AnkiConnect backend.
	Sync SyncConfig `json:"sync" yaml:"sync"`
}

// DefaultKinds is the recognized environment set when the manifest omits one.
var DefaultKinds = []string{
	"definition", "theorem", "lemma", "proposition", "corollary", "remark", "example",
}
