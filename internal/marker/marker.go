// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package marker writes identity comments back into source files so block
// identities survive later edits to the body. A marker is a comment of the
// form "% recall-id: <12 hex chars>" placed on the line above the block's
// \begin.
package marker

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pdiddy/recall-engine/internal/identity"
)

// searchWindow is how many lines above the block we look for an existing
// marker before inserting a new one. Must match the extraction window, or
// a marker we write here would not be found on the next run.
const searchWindow = 20

// Unanchored, matching extraction: a marker counts wherever it appears on
// the line, including after code on the same line.
var markerRe = regexp.MustCompile(`(?i)%\s*(?:recall-)?id:\s*[a-fA-F0-9]{8,40}`)

// Ensure guarantees the file carries a marker for id above the block whose
// \begin sits on startLine (1-based). An existing marker within the window
// is rewritten in place if it names a different identity; otherwise a new
// marker line is inserted directly above the block. Returns true when the
// file was modified.
func Ensure(path string, startLine int, id string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}

	short := identity.Short(id)
	trailingNewline := strings.HasSuffix(string(data), "\n")
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")

	if startLine < 1 || startLine > len(lines) {
		return false, fmt.Errorf("line %d out of range for %s (%d lines)", startLine, path, len(lines))
	}

	if idx, ok := findExisting(lines, startLine); ok {
		if strings.Contains(strings.ToLower(lines[idx]), short) {
			return false, nil
		}
		lines[idx] = markerRe.ReplaceAllString(lines[idx], "% recall-id: "+short)
	} else {
		indent := leadingWhitespace(lines[startLine-1])
		inserted := indent + "% recall-id: " + short
		lines = append(lines[:startLine-1], append([]string{inserted}, lines[startLine-1:]...)...)
	}

	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}

	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(path, []byte(out), mode); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}

// findExisting scans upward from the line above the block through the whole
// window; the nearest marker wins. The scan mirrors extraction's, so any
// marker extraction would attribute to this block is the one rewritten here
// instead of a second one being inserted.
func findExisting(lines []string, startLine int) (int, bool) {
	for i := startLine - 2; i >= 0 && i >= startLine-1-searchWindow; i-- {
		if markerRe.MatchString(lines[i]) {
			return i, true
		}
	}
	return 0, false
}

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}
