// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile turns extracted blocks into create/update/skip decisions
// by consulting the ledger. It is side-effect free: it never mutates the
// ledger, never touches the network itself, and never writes to a source
// file. Executing its decisions is the engine's job.
package reconcile

import (
	"context"
	"fmt"

	"github.com/pdiddy/recall-engine/internal/cards"
	"github.com/pdiddy/recall-engine/internal/identity"
	"github.com/pdiddy/recall-engine/pkg/types"
)

// State is the read-only view of the ledger the reconciler needs. The
// concrete *ledger.Ledger satisfies it; tests supply fakes.
type State interface {
	IsKnown(id string) bool
	ContentChanged(id, digest string) bool
	IDs() []string
}

// Candidate is a block annotated with its course routing, ready for
// reconciliation.
type Candidate struct {
	Block    types.ExtractedBlock
	Course   string
	Deck     string
	Priority int
}

// Classify applies the per-block rules: an unknown identity is a create, a
// known identity with a differing digest is an update, anything else a skip.
func Classify(st State, id, digest string) types.Action {
	if !st.IsKnown(id) {
		return types.ActionCreate
	}
	if st.ContentChanged(id, digest) {
		return types.ActionUpdate
	}
	return types.ActionSkip
}

// ResolveMarkers resolves persisted identity markers found in source
// comments against the ledger. A full-length marker is adopted as-is; a
// short marker is adopted only when it prefixes exactly one known identity.
// Ambiguous prefixes (two or more matches) keep the freshly computed
// identity — minting a new one and orphaning the old history — and are
// reported as warnings so the run output shows the orphaning.
func ResolveMarkers(st State, blocks []types.ExtractedBlock) ([]types.ExtractedBlock, []string) {
	known := st.IDs()
	var warnings []string

	resolved := make([]types.ExtractedBlock, len(blocks))
	for i, b := range blocks {
		resolved[i] = b
		if b.MarkerID == "" {
			continue
		}
		if len(b.MarkerID) == 40 {
			resolved[i].Identity = b.MarkerID
			continue
		}
		full, ok := identity.ResolveShort(b.MarkerID, known)
		if ok {
			resolved[i].Identity = full
			continue
		}
		if countPrefix(known, b.MarkerID) > 1 {
			warnings = append(warnings, fmt.Sprintf(
				"marker %s at %s is ambiguous; minting a new identity (prior history orphaned)",
				b.MarkerID, b.Signature()))
		}
	}
	return resolved, warnings
}

func countPrefix(known []string, prefix string) int {
	n := 0
	for _, id := range known {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// PerBlock produces one decision per candidate using the direct kind
// formatters, without consulting the assistant.
func PerBlock(st State, cands []Candidate, commitSHA string) []types.Decision {
	decisions := make([]types.Decision, 0, len(cands))
	for _, c := range cands {
		mapper := &cards.Mapper{Course: c.Course, CommitSHA: commitSHA}
		card := mapper.Map(c.Block, c.Deck)
		decisions = append(decisions, types.Decision{
			Identity: c.Block.Identity,
			Action:   Classify(st, c.Block.Identity, c.Block.ContentDigest),
			Card:     card,
			Block:    c.Block,
			Assisted: false,
		})
	}
	return decisions
}

// BatchOutcome is the result of the batch-assisted path.
type BatchOutcome struct {
	Decisions []types.Decision

	// Fallback reports that the assistant failed and the deterministic
	// per-block fallback produced the decisions.
	Fallback bool

	// Warnings collect assistant-side problems that did not stop the run:
	// the failure that triggered the fallback, invalid cards dropped from
	// the response, indexes out of range.
	Warnings []string
}

// BatchAssisted delegates block selection to the assistant. The assistant
// sees all candidates with their priorities and the daily quota and returns
// a subset with derived cards; each derived card gets its own identity and
// is classified independently under the same per-block rules.
//
// If the assistant call fails or its response is unusable, every candidate
// deterministically falls back to the per-block rules with no added novelty:
// create for unknown identities, skip otherwise. Fallback decisions are
// flagged Assisted=false so callers can tell the paths apart; identity
// semantics are identical on both.
func BatchAssisted(ctx context.Context, st State, backend Assistant, cands []Candidate, cfg BatchConfig, commitSHA string) BatchOutcome {
	if len(cands) == 0 {
		return BatchOutcome{}
	}

	req := buildBatchRequest(st, cands, cfg)

	resp, err := backend.SelectCards(ctx, req)
	if err != nil {
		return fallbackOutcome(st, cands, commitSHA,
			fmt.Sprintf("assistant failed, using per-block fallback: %v", err))
	}

	outcome := BatchOutcome{}
	for _, sel := range resp.Selected {
		if sel.BlockIndex < 0 || sel.BlockIndex >= len(cands) {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("assistant selected out-of-range block index %d", sel.BlockIndex))
			continue
		}
		c := cands[sel.BlockIndex]
		mapper := &cards.Mapper{Course: c.Course, CommitSHA: commitSHA}

		for _, spec := range sel.Cards {
			model := spec.Model
			if model == "" {
				model = types.ModelBasic
			}
			card := mapper.Derived(c.Block, c.Deck, model, spec.Front, spec.Back, spec.Tags)
			if err := cards.Validate(card); err != nil {
				outcome.Warnings = append(outcome.Warnings,
					fmt.Sprintf("dropping invalid derived card for %s: %v", c.Block.Signature(), err))
				continue
			}
			outcome.Decisions = append(outcome.Decisions, types.Decision{
				Identity:  card.Identity,
				Action:    Classify(st, card.Identity, card.ContentDigest),
				Card:      card,
				Block:     c.Block,
				Assisted:  true,
				Reasoning: sel.Reasoning,
			})
		}
	}

	for _, skip := range resp.Skipped {
		if skip.BlockIndex < 0 || skip.BlockIndex >= len(cands) {
			continue
		}
		c := cands[skip.BlockIndex]
		outcome.Decisions = append(outcome.Decisions, types.Decision{
			Identity:  c.Block.Identity,
			Action:    types.ActionSkip,
			Block:     c.Block,
			Assisted:  true,
			Reasoning: skip.Reasoning,
		})
	}

	return outcome
}

// fallbackOutcome classifies every candidate without novelty: unknown
// identities become creates with the directly formatted card, known
// identities are skipped even if their content changed. Updates are reserved
// for the normal paths; the fallback only guarantees forward progress.
func fallbackOutcome(st State, cands []Candidate, commitSHA, warning string) BatchOutcome {
	outcome := BatchOutcome{Fallback: true, Warnings: []string{warning}}
	for _, c := range cands {
		mapper := &cards.Mapper{Course: c.Course, CommitSHA: commitSHA}
		action := types.ActionSkip
		if !st.IsKnown(c.Block.Identity) {
			action = types.ActionCreate
		}
		outcome.Decisions = append(outcome.Decisions, types.Decision{
			Identity: c.Block.Identity,
			Action:   action,
			Card:     mapper.Map(c.Block, c.Deck),
			Block:    c.Block,
			Assisted: false,
		})
	}
	return outcome
}
