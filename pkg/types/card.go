// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Card model names understood by the sync backend and the offline exporter.
const (
	ModelBasic = "Basic"
	ModelCloze = "Cloze"
)

// Card is a flashcard ready for synchronization. Cards are addressed by
// Identity, which serves as the idempotency key across runs: re-deriving the
// same content for the same source location always yields the same Identity.
type Card struct {
	// Identity is the idempotency key. For cards mapped directly from a
	// block it equals the block identity; for assistant-derived cards it
	// is computed over the derived content under the "kind::derived" tag.
	Identity string `json:"identity" yaml:"identity"`

	// Deck is the destination deck name.
	Deck string `json:"deck" yaml:"deck"`

	// Model is the note type: ModelBasic or ModelCloze.
	Model string `json:"model" yaml:"model"`

	// Fields maps field names ("Front", "Back") to content.
	Fields map[string]string `json:"fields" yaml:"fields"`

	// Tags label the card for retrieval inside the sync backend.
	Tags []string `json:"tags" yaml:"tags"`

	// ContentDigest detects edits to the card content across runs.
	ContentDigest string `json:"content_digest" yaml:"content_digest"`
}

// Front and Back are convenience accessors for the standard fields.
func (c Card) Front() string { return c.Fields["Front"] }
func (c Card) Back() string  { return c.Fields["Back"] }

// ModelFields returns the fields keyed the way the card's note model expects
// them. Cards store content under Front/Back regardless of model; the Cloze
// model reads Text and Back Extra, so those fall back to Front and Back when
// absent.
func (c Card) ModelFields() map[string]string {
	if c.Model != ModelCloze {
		return c.Fields
	}
	text, extra := c.Fields["Text"], c.Fields["Back Extra"]
	if text == "" {
		text = c.Fields["Front"]
	}
	if extra == "" {
		extra = c.Fields["Back"]
	}
	return map[string]string{"Text": text, "Back Extra": extra}
}
