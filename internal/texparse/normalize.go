// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package texparse

import (
	"fmt"
	"regexp"
	"strings"
)

// Math span patterns, in protection order: bracketed display math, dollar
// display math, then inline math. Display forms must be swapped out first so
// the inline pattern cannot eat half of a $$...$$ pair.
var (
	displayBracketRe = regexp.MustCompile(`(?s)\\\[.*?\\\]`)
	displayDollarRe  = regexp.MustCompile(`(?s)\$\$.*?\$\$`)
	inlineDollarRe   = regexp.MustCompile(`\$[^$]+?\$`)

	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	newlineRunRe = regexp.MustCompile(`\n\n+`)
)

// mathPlaceholder builds the substitution token for the i-th protected span.
// NUL delimiters cannot appear in LaTeX source, so restoration is exact.
func mathPlaceholder(i int) string {
	return fmt.Sprintf("\x00math:%d\x00", i)
}

// Normalize canonicalizes block content for stable hashing: runs of spaces
// and tabs collapse to one space, three or more consecutive newlines collapse
// to exactly two, and leading/trailing whitespace is trimmed. Math spans
// (\[...\], $$...$$, $...$) are substituted with placeholders before
// collapsing and restored verbatim afterward, so not a single character
// inside them changes.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(content string) string {
	content = strings.TrimSpace(content)

	var spans []string
	protect := func(m string) string {
		spans = append(spans, m)
		return mathPlaceholder(len(spans) - 1)
	}

	content = displayBracketRe.ReplaceAllStringFunc(content, protect)
	content = displayDollarRe.ReplaceAllStringFunc(content, protect)
	content = inlineDollarRe.ReplaceAllStringFunc(content, protect)

	content = spaceRunRe.ReplaceAllString(content, " ")
	content = newlineRunRe.ReplaceAllString(content, "\n\n")

	for i, span := range spans {
		content = strings.Replace(content, mathPlaceholder(i), span, 1)
	}

	return strings.TrimSpace(content)
}
