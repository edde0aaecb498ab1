// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the recall-engine pipeline:
// extracted source blocks, flashcards, reconciliation decisions, and the
// configuration manifest.
package types

import "fmt"

// ExtractedBlock is a LaTeX environment recognized as one trackable knowledge
// unit. Blocks are ephemeral: they are produced by one extraction pass over a
// source file and discarded after reconciliation.
type ExtractedBlock struct {
	// Kind is the environment name, e.g. "definition" or "theorem".
	Kind string `json:"kind" yaml:"kind"`

	// Title is the optional bracketed title following \begin{kind}.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Body is the raw environment content between \begin and \end.
	Body string `json:"body" yaml:"body"`

	// NormalizedBody is Body after whitespace canonicalization with math
	// spans preserved verbatim. All hashing is computed over this form.
	NormalizedBody string `json:"normalized_body" yaml:"normalized_body"`

	// FilePath is the source file path relative to the repository root.
	FilePath string `json:"file_path" yaml:"file_path"`

	// StartLine and EndLine are 1-indexed line numbers of the environment
	// in the source file.
	StartLine int `json:"start_line" yaml:"start_line"`
	EndLine   int `json:"end_line" yaml:"end_line"`

	// RawText is the original matched text including \begin and \end.
	RawText string `json:"-" yaml:"-"`

	// Identity is the content-and-location-addressed identifier for this
	// block: a 40-char hex digest over (kind, normalized body, file path).
	Identity string `json:"identity" yaml:"identity"`

	// ContentDigest is a digest of the normalized body alone. It detects
	// edits independent of location or kind.
	ContentDigest string `json:"content_digest" yaml:"content_digest"`

	// MarkerID is a persisted identity found in a source comment within
	// the backward scan window, if any. It may be a short (8-39 char)
	// prefix that still needs resolution against the ledger.
	MarkerID string `json:"marker_id,omitempty" yaml:"marker_id,omitempty"`

	// NeighborContext holds surrounding source lines gathered for the
	// assistant backend. Empty unless the assisted path is enabled.
	NeighborContext string `json:"-" yaml:"-"`
}

// Signature returns a human-readable label for logs and warnings,
// e.g. "theorem[Pythagorean]@math/ch1.tex:42".
func (b ExtractedBlock) Signature() string {
	if b.Title != "" {
		return fmt.Sprintf("%s[%s]@%s:%d", b.Kind, b.Title, b.FilePath, b.StartLine)
	}
	return fmt.Sprintf("%s@%s:%d", b.Kind, b.FilePath, b.StartLine)
}
