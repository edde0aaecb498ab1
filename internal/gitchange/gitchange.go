// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gitchange scopes a run to the files touched since the last
// successful sync. It shells out to the git CLI rather than linking a Git
// implementation; the engine only needs HEAD's SHA and a changed-file list.
package gitchange

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// runGit executes git with the given arguments in dir and returns stdout.
// Package-level var for test substitution.
var runGit = func(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// HeadSHA returns the full SHA of the repository's current HEAD.
func HeadSHA(ctx context.Context, repo string) (string, error) {
	out, err := runGit(ctx, repo, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ChangedFiles lists files changed between since and HEAD, excluding
// deletions. An empty since means no prior cursor exists and every tracked
// file is in scope.
func ChangedFiles(ctx context.Context, repo, since string) ([]string, error) {
	var out string
	var err error
	if since == "" {
		out, err = runGit(ctx, repo, "ls-files")
	} else {
		out, err = runGit(ctx, repo, "diff", "--name-only", "--diff-filter=d", since+"..HEAD")
	}
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func splitLines(out string) []string {
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files
}

// MatchPatterns filters paths against course glob patterns. A * matches
// within one path segment, ** crosses segment boundaries. Paths use forward
// slashes, as git prints them.
func MatchPatterns(paths, patterns []string) []string {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, compilePattern(p))
	}

	var matched []string
	for _, path := range paths {
		for _, re := range res {
			if re.MatchString(path) {
				matched = append(matched, path)
				break
			}
		}
	}
	return matched
}

// compilePattern converts a glob into an anchored regexp. "**/" also
// matches zero directories, so "notes/**/*.tex" covers files directly
// under notes/.
func compilePattern(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); {
		switch {
		case strings.HasPrefix(pattern[i:], "**/"):
			b.WriteString(`(?:[^/]+/)*`)
			i += 3
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(`.*`)
			i += 2
		case pattern[i] == '*':
			b.WriteString(`[^/]*`)
			i++
		case pattern[i] == '?':
			b.WriteString(`[^/]`)
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
