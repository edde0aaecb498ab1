// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"context"

	"github.com/pdiddy/recall-engine/internal/texparse"
)

// Character caps on the markup sent per block, so a single oversized
// environment cannot blow the assistant's context window.
const (
	maxBodyChars    = 2000
	maxContextChars = 1000
)

// Assistant selects which blocks become cards. Implementations live in
// internal/assistant; tests use fakes.
type Assistant interface {
	SelectCards(ctx context.Context, req BatchRequest) (BatchResponse, error)
}

// BatchConfig carries the selection knobs forwarded to the assistant.
type BatchConfig struct {
	// Quota is the daily new-card budget the assistant should respect.
	Quota int

	// MaxCardsPerBlock caps the derived cards per selected block.
	MaxCardsPerBlock int

	// ParaphraseStrength in [0,1] steers how far derived cards may drift
	// from the source wording.
	ParaphraseStrength float64
}

// BatchRequest is the full candidate set presented to the assistant in one
// call. Block bodies are sanitized and truncated before they leave the
// process.
type BatchRequest struct {
	Blocks             []BatchBlock `json:"blocks"`
	Quota              int          `json:"quota"`
	MaxCardsPerBlock   int          `json:"max_cards_per_block"`
	ParaphraseStrength float64      `json:"paraphrase_strength"`
}

// BatchBlock is a single candidate as the assistant sees it. Index is the
// candidate's position in the request; responses refer back to it.
type BatchBlock struct {
	Index    int    `json:"index"`
	Kind     string `json:"kind"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body"`
	Context  string `json:"context,omitempty"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Course   string `json:"course"`
	Priority int    `json:"priority"`
	Known    bool   `json:"known"`
}

// BatchResponse is the assistant's selection. Indexes not present in either
// list are treated as unselected and produce no decision.
type BatchResponse struct {
	Selected []SelectedBlock `json:"selected"`
	Skipped  []SkippedBlock  `json:"skipped"`
}

// SelectedBlock carries the derived cards for one chosen candidate.
type SelectedBlock struct {
	BlockIndex int        `json:"block_index"`
	Cards      []CardSpec `json:"cards"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// SkippedBlock records an explicit pass with its rationale.
type SkippedBlock struct {
	BlockIndex int    `json:"block_index"`
	Reasoning  string `json:"reasoning,omitempty"`
}

// CardSpec is one derived card as proposed by the assistant. Model defaults
// to Basic when empty.
type CardSpec struct {
	Model string   `json:"model,omitempty"`
	Front string   `json:"front"`
	Back  string   `json:"back"`
	Tags  []string `json:"tags,omitempty"`
}

func buildBatchRequest(st State, cands []Candidate, cfg BatchConfig) BatchRequest {
	req := BatchRequest{
		Blocks:             make([]BatchBlock, 0, len(cands)),
		Quota:              cfg.Quota,
		MaxCardsPerBlock:   cfg.MaxCardsPerBlock,
		ParaphraseStrength: cfg.ParaphraseStrength,
	}
	for i, c := range cands {
		req.Blocks = append(req.Blocks, BatchBlock{
			Index:    i,
			Kind:     c.Block.Kind,
			Title:    c.Block.Title,
			Body:     texparse.Truncate(texparse.Sanitize(c.Block.Body), maxBodyChars),
			Context:  texparse.Truncate(texparse.Sanitize(c.Block.NeighborContext), maxContextChars),
			File:     c.Block.FilePath,
			Line:     c.Block.StartLine,
			Course:   c.Course,
			Priority: c.Priority,
			Known:    st.IsKnown(c.Block.Identity),
		})
	}
	return req
}
