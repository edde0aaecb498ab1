// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package texparse scans LaTeX source for recognized environments and turns
// them into identity-carrying blocks. Extraction is a pure function of the
// input text: it never mutates its input and never returns an error —
// malformed input simply yields fewer matches.
package texparse

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/recall-engine/internal/identity"
	"github.com/pdiddy/recall-engine/pkg/types"
)

// markerWindow is how many lines above a block's \begin the extractor (and
// the source mutator) scan for a persisted identity comment.
const markerWindow = 20

// markerRe matches a persisted identity comment: "% recall-id: <hex>" with an
// optional bare "id:" form, 8-40 hex chars, case-insensitive. 8 is the
// accepted minimum, 12 the written short form, 40 a full identity.
var markerRe = regexp.MustCompile(`(?i)%\s*(?:recall-)?id:\s*([a-fA-F0-9]{8,40})`)

// Extract scans content for \begin{kind}...\end{kind} pairs, kind restricted
// to the given recognized set, and returns the blocks in source order.
//
// A first pass blanks out commented lines (first non-blank character is %)
// while preserving the line count, so commented-out environments are
// invisible to extraction without shifting the line numbers of anything
// below them. Matching is flat: nested environments of the same kind are not
// supported — the first \end{kind} closes the block. Unterminated
// environments produce no match.
//
// Each block carries its normalized body, identity, and content digest, plus
// any persisted identity found within markerWindow lines above its \begin.
func Extract(content, filePath string, kinds []string) []types.ExtractedBlock {
	if len(kinds) == 0 {
		return nil
	}

	sourceLines := strings.Split(content, "\n")
	blanked := blankCommentedLines(content)

	type match struct {
		kind       string
		title      string
		body       string
		raw        string
		start, end int // byte offsets into blanked
	}

	var matches []match
	for _, kind := range kinds {
		re := environmentRe(kind)
		for _, loc := range re.FindAllStringSubmatchIndex(blanked, -1) {
			m := match{
				kind:  kind,
				raw:   blanked[loc[0]:loc[1]],
				start: loc[0],
				end:   loc[1],
			}
			if loc[2] >= 0 {
				m.title = blanked[loc[2]:loc[3]]
			}
			m.body = blanked[loc[4]:loc[5]]
			matches = append(matches, m)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	// Matching is non-overlapping across kinds as well: an environment that
	// opens inside an already-matched span is swallowed by the outer block.
	blocks := make([]types.ExtractedBlock, 0, len(matches))
	prevEnd := -1
	for _, m := range matches {
		if m.start < prevEnd {
			continue
		}
		prevEnd = m.end
		startLine := strings.Count(blanked[:m.start], "\n") + 1
		endLine := strings.Count(blanked[:m.end], "\n") + 1
		normalized := Normalize(m.body)

		blocks = append(blocks, types.ExtractedBlock{
			Kind:           m.kind,
			Title:          m.title,
			Body:           m.body,
			NormalizedBody: normalized,
			FilePath:       filePath,
			StartLine:      startLine,
			EndLine:        endLine,
			RawText:        m.raw,
			Identity:       identity.BlockID(m.kind, normalized, filePath),
			ContentDigest:  identity.ContentDigest(normalized),
			MarkerID:       findMarker(sourceLines, startLine),
		})
	}

	return blocks
}

// environmentRe builds the pattern for one environment kind: \begin{kind},
// an optional bracketed title directly after it, a non-greedy body, and the
// matching \end{kind}. One pattern per kind stands in for a backreference,
// which RE2 does not support.
func environmentRe(kind string) *regexp.Regexp {
	q := regexp.QuoteMeta(kind)
	return regexp.MustCompile(`(?s)\\begin\{` + q + `\}(?:\[(.*?)\])?(.*?)\\end\{` + q + `\}`)
}

// blankCommentedLines replaces every line whose first non-blank character is
// the comment marker with an empty line, keeping offsets and line numbers of
// all remaining content intact.
func blankCommentedLines(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "%") {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// findMarker walks backward through at most markerWindow lines above the
// block's start line looking for a persisted identity comment. The nearest
// match wins. startLine is 1-indexed; the scan covers the original
// (unblanked) lines, since markers are themselves comments.
func findMarker(sourceLines []string, startLine int) string {
	lo := startLine - 1 - markerWindow
	if lo < 0 {
		lo = 0
	}
	for i := startLine - 2; i >= lo; i-- {
		if i >= len(sourceLines) {
			continue
		}
		if m := markerRe.FindStringSubmatch(sourceLines[i]); m != nil {
			return strings.ToLower(m[1])
		}
	}
	return ""
}
