// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cards maps extracted blocks to flashcards. Formatting is dispatched
// through a closed kind → formatter table; unrecognized kinds fall through to
// a generic formatter.
package cards

import (
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/recall-engine/internal/identity"
	"github.com/pdiddy/recall-engine/pkg/types"
)

// formatter renders the front and back of a card for one block kind.
type formatter func(b types.ExtractedBlock) (front, back string)

// formatters is the closed dispatch table. Kinds sharing pedagogy share a
// formatter; anything outside the table formats generically.
var formatters = map[string]formatter{
	"definition":  formatStatement,
	"remark":      formatStatement,
	"theorem":     formatStatement,
	"proposition": formatStatement,
	"lemma":       formatStatement,
	"corollary":   formatStatement,
	"example":     formatExample,
}

// Mapper builds cards from blocks, tagging them with course and commit
// provenance.
type Mapper struct {
	Course    string
	CommitSHA string
}

// Map renders a block into a card destined for deck. The card inherits the
// block's identity and content digest, so reconciliation classifies it with
// the same semantics as the block itself.
func (m *Mapper) Map(b types.ExtractedBlock, deck string) types.Card {
	format, ok := formatters[strings.ToLower(b.Kind)]
	if !ok {
		format = formatGeneric
	}
	front, back := format(b)

	return types.Card{
		Identity:      b.Identity,
		Deck:          deck,
		Model:         types.ModelBasic,
		Fields:        map[string]string{"Front": front, "Back": back},
		Tags:          m.tags(b),
		ContentDigest: b.ContentDigest,
	}
}

// Derived builds a card from assistant-derived front/back content. The
// identity is computed over the derived content under the block's kind, so
// regenerating identical content never creates a duplicate.
func (m *Mapper) Derived(b types.ExtractedBlock, deck, model, front, back string, extraTags []string) types.Card {
	content := front + "|" + back
	tags := m.tags(b)
	for _, t := range extraTags {
		if !contains(tags, t) {
			tags = append(tags, t)
		}
	}
	return types.Card{
		Identity:      identity.DerivedID(b.Kind, content, b.FilePath),
		Deck:          deck,
		Model:         model,
		Fields:        map[string]string{"Front": front, "Back": back},
		Tags:          tags,
		ContentDigest: identity.ContentDigest(content),
	}
}

// Validate rejects cards that would be unusable after sync: an empty front,
// a Basic card with an empty back, or a Cloze card without a cloze deletion.
func Validate(c types.Card) error {
	front := strings.TrimSpace(c.Front())
	back := strings.TrimSpace(c.Back())

	if front == "" {
		return fmt.Errorf("empty front field")
	}
	switch c.Model {
	case types.ModelBasic:
		if back == "" {
			return fmt.Errorf("basic card with empty back")
		}
	case types.ModelCloze:
		if !strings.Contains(front, "{{c") {
			return fmt.Errorf("cloze card without a cloze deletion")
		}
	default:
		return fmt.Errorf("unknown model %q", c.Model)
	}
	return nil
}

// RevisionTag returns the tag added to updated notes, e.g. "rev:20260829".
func RevisionTag() string {
	return "rev:" + time.Now().Format("20060102")
}

func (m *Mapper) tags(b types.ExtractedBlock) []string {
	tags := []string{"auto", "from-tex"}
	if m.Course != "" {
		tags = append(tags, "course:"+m.Course)
	}
	if m.CommitSHA != "" {
		sha := m.CommitSHA
		if len(sha) > 8 {
			sha = sha[:8]
		}
		tags = append(tags, "commit:"+sha)
	}
	tags = append(tags, "kind:"+b.Kind)

	fileTag := strings.NewReplacer("/", "_", "\\", "_", ".", "_").Replace(b.FilePath)
	tags = append(tags, "file:"+fileTag)
	tags = append(tags, "id:"+identity.Short(b.Identity))
	return tags
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// --- formatters ---

func sourceFooter(b types.ExtractedBlock) string {
	return fmt.Sprintf(
		`<div style="margin-top: 1em; font-size: 0.9em; color: #666;">Source: <code>%s:%d</code></div>`,
		b.FilePath, b.StartLine)
}

// formatStatement covers definition- and theorem-like kinds: the front names
// the statement, the back carries it in full.
func formatStatement(b types.ExtractedBlock) (string, string) {
	label := capitalize(b.Kind)

	var front string
	if b.Title != "" {
		front = fmt.Sprintf("%s: %s", label, b.Title)
	} else {
		front = fmt.Sprintf("%s: %s", label, FirstSentence(b.NormalizedBody, 100))
	}

	back := fmt.Sprintf(
		"<div class=\"latex-content\">\n<strong>%s%s:</strong>\n<div style=\"margin-top: 0.5em;\">\n%s\n</div>\n</div>\n%s",
		label, titleSuffix(b), strings.TrimSpace(b.Body), sourceFooter(b))
	return front, back
}

// formatExample asks what the example demonstrates rather than restating it.
func formatExample(b types.ExtractedBlock) (string, string) {
	var front string
	if b.Title != "" {
		front = fmt.Sprintf("<strong>Example: %s</strong>", b.Title)
	} else {
		front = fmt.Sprintf("<strong>Example:</strong><div style=\"margin-top: 0.5em;\">%s</div>",
			FirstSentence(b.NormalizedBody, 200))
	}
	front += `<div style="margin-top: 1em; color: #666; font-size: 0.9em;">What does this example demonstrate?</div>`

	label := "Example"
	if b.Title != "" {
		label = "Example: " + b.Title
	}
	back := fmt.Sprintf(
		"<div class=\"latex-content\">\n<strong>%s</strong>\n<div style=\"margin-top: 0.5em;\">\n%s\n</div>\n</div>\n%s",
		label, strings.TrimSpace(b.Body), sourceFooter(b))
	return front, back
}

func formatGeneric(b types.ExtractedBlock) (string, string) {
	label := capitalize(b.Kind)
	var front string
	if b.Title != "" {
		front = fmt.Sprintf("%s: %s", label, b.Title)
	} else {
		front = fmt.Sprintf("%s: %s", label, FirstSentence(b.NormalizedBody, 100))
	}
	back := fmt.Sprintf("<div class=\"latex-content\">\n%s\n</div>\n%s",
		strings.TrimSpace(b.Body), sourceFooter(b))
	return front, back
}

func titleSuffix(b types.ExtractedBlock) string {
	if b.Title == "" {
		return ""
	}
	return " (" + b.Title + ")"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
