// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package texparse

import "regexp"

// dangerousCommands lists LaTeX commands that can execute code or touch the
// filesystem. Block content is stripped of these before it leaves the
// process toward an assistant backend.
var dangerousCommands = []string{
	`\\write18`, `\\input`, `\\include`, `\\def`, `\\let`, `\\expandafter`,
	`\\csname`, `\\catcode`, `\\read`, `\\openin`, `\\openout`,
	`\\immediate`, `\\special`,
}

var shellEscapeRe = regexp.MustCompile(`(?i)--?shell-escape|--enable-write18`)

type dangerousPatterns struct {
	braced     *regexp.Regexp
	optional   *regexp.Regexp
	standalone *regexp.Regexp
}

var dangerous = func() []dangerousPatterns {
	ps := make([]dangerousPatterns, 0, len(dangerousCommands))
	for _, cmd := range dangerousCommands {
		ps = append(ps, dangerousPatterns{
			braced:     regexp.MustCompile(`(?i)` + cmd + `\s*\{[^}]*\}`),
			optional:   regexp.MustCompile(`(?i)` + cmd + `\s*\[[^\]]*\]`),
			standalone: regexp.MustCompile(`(?i)` + cmd + `\b`),
		})
	}
	return ps
}()

// Sanitize removes dangerous LaTeX commands and shell-escape flags from
// content. Ordinary formatting commands and math are left untouched.
func Sanitize(content string) string {
	out := shellEscapeRe.ReplaceAllString(content, "")
	for _, p := range dangerous {
		out = p.braced.ReplaceAllString(out, "")
		out = p.optional.ReplaceAllString(out, "")
		out = p.standalone.ReplaceAllString(out, "")
	}
	return out
}

// Truncate caps s at max bytes; batch payloads truncate very long block
// bodies before they are sent to the assistant.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
