// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/recall-engine/internal/reconcile"
)

// parseSelection decodes the model's JSON answer. Models sometimes wrap the
// object in a markdown code fence or lead with prose, so the parser strips
// fences and falls back to the outermost brace pair before giving up.
func parseSelection(text string) (reconcile.BatchResponse, error) {
	candidates := []string{strings.TrimSpace(text)}

	if stripped, ok := stripCodeFence(text); ok {
		candidates = append([]string{stripped}, candidates...)
	}
	if braced, ok := outermostObject(text); ok {
		candidates = append(candidates, braced)
	}

	var lastErr error
	for _, c := range candidates {
		var resp reconcile.BatchResponse
		if err := json.Unmarshal([]byte(c), &resp); err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	return reconcile.BatchResponse{}, fmt.Errorf("parsing selection response: %w", lastErr)
}

// stripCodeFence extracts the body of the first ```-fenced block, dropping
// an optional language tag on the opening fence.
func stripCodeFence(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start == -1 {
		return "", false
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || isLanguageTag(firstLine) {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// outermostObject returns the substring from the first '{' to the last '}'.
func outermostObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
