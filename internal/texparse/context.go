// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package texparse

import "strings"

// NeighborContext gathers the source lines surrounding a block, half above
// and half below, excluding the block itself. The assistant backend uses the
// context to judge whether a block is worth a card. Returns "" when no
// surrounding lines exist.
func NeighborContext(content string, startLine, endLine, totalLines int) string {
	if totalLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")

	before := totalLines / 2
	after := totalLines - before

	startIdx := startLine - 1
	endIdx := endLine - 1

	lo := startIdx - before
	if lo < 0 {
		lo = 0
	}
	hi := endIdx + 1 + after
	if hi > len(lines) {
		hi = len(lines)
	}
	if startIdx < 0 || startIdx > len(lines) {
		return ""
	}

	var parts []string
	if beforeLines := lines[lo:startIdx]; len(beforeLines) > 0 {
		parts = append(parts, "% Context before:\n"+strings.Join(beforeLines, "\n"))
	}
	if endIdx+1 < len(lines) && endIdx+1 < hi {
		if afterLines := lines[endIdx+1 : hi]; len(afterLines) > 0 {
			parts = append(parts, "% Context after:\n"+strings.Join(afterLines, "\n"))
		}
	}
	return strings.Join(parts, "\n\n")
}
