// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cards

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	labelRe      = regexp.MustCompile(`\\label\{[^}]+\}`)
	citeRe       = regexp.MustCompile(`\\cite[a-z]*\{[^}]+\}`)
	refRe        = regexp.MustCompile(`\\ref\{[^}]+\}`)
	sentenceRe   = regexp.MustCompile(`^([^.!?]+[.!?])(\s|$)`)
)

// FirstSentence extracts the first sentence of text, or a word-boundary
// truncation when no sentence fits within max characters. Labels are dropped
// and citations/references replaced with placeholders, since neither adds
// meaning to a card front.
func FirstSentence(text string, max int) string {
	text = whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	text = labelRe.ReplaceAllString(text, "")
	text = citeRe.ReplaceAllString(text, "[citation]")
	text = refRe.ReplaceAllString(text, "[ref]")
	text = whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")

	if m := sentenceRe.FindStringSubmatch(text); m != nil {
		sentence := strings.TrimSpace(m[1])
		if len(sentence) <= max {
			return sentence
		}
	}

	if len(text) <= max {
		return text
	}

	truncated := text[:max]
	if idx := strings.LastIndex(truncated, " "); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}
