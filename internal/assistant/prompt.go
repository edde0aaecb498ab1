// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/pdiddy/recall-engine/internal/reconcile"
)

// selectionPromptTmpl is the prompt sent to the model for one reconciliation
// batch. The candidate blocks arrive as a JSON payload; the model answers
// with a JSON object naming selected and skipped block indexes.
var selectionPromptTmpl = template.Must(template.New("selection").Parse(`You are a spaced-repetition card curator for mathematics lecture notes. You receive a batch of LaTeX environment blocks (definitions, theorems, lemmas, examples and similar) and decide which ones are worth turning into flashcards today.

Rules:
- Select at most {{.Quota}} blocks in total. Prefer blocks with higher priority values, blocks not yet known, and blocks that state a single memorable fact.
- For each selected block produce between 1 and {{.MaxCardsPerBlock}} cards. A card has a "front" (the question) and a "back" (the answer), both plain HTML. Keep LaTeX math untouched inside \( \) or \[ \] delimiters.
- Paraphrase strength is {{printf "%.2f" .ParaphraseStrength}} on a 0-1 scale: at 0 quote the source verbatim, at 1 rewrite freely in your own words.
- model is "Basic" for question/answer cards or "Cloze" for deletion cards; Cloze backs use {{"{{c1::...}}"}} syntax in the front and may leave the back empty.
- Skip blocks already marked known unless their content is trivial to improve. Never invent mathematics not present in the block or its context.

Respond with a single JSON object and no other text:
{"selected": [{"block_index": 0, "cards": [{"model": "Basic", "front": "...", "back": "...", "tags": []}], "reasoning": "..."}], "skipped": [{"block_index": 1, "reasoning": "..."}]}

Candidate blocks:
{{.Payload}}
`))

// renderPrompt serializes the batch request and executes the selection
// template.
func renderPrompt(req reconcile.BatchRequest) (string, error) {
	payload, err := json.MarshalIndent(req.Blocks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling batch payload: %w", err)
	}

	maxCards := req.MaxCardsPerBlock
	if maxCards <= 0 {
		maxCards = 3
	}
	quota := req.Quota
	if quota <= 0 {
		quota = len(req.Blocks)
	}

	var buf bytes.Buffer
	err = selectionPromptTmpl.Execute(&buf, struct {
		Quota              int
		MaxCardsPerBlock   int
		ParaphraseStrength float64
		Payload            string
	}{
		Quota:              quota,
		MaxCardsPerBlock:   maxCards,
		ParaphraseStrength: req.ParaphraseStrength,
		Payload:            string(payload),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
