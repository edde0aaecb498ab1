// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package identity computes content-addressed identities and change-detection
// digests for extracted blocks. Identities are the idempotency keys the whole
// pipeline hangs off: the same content at the same location always hashes to
// the same identity, so repeated runs converge instead of duplicating cards.
package identity

import (
	"crypto/sha1"
	"fmt"
	"strings"
)

// ShortLength is the number of identity characters written into source
// markers. 12 hex chars (48 bits) keeps collisions negligible at the scale of
// thousands of cards while staying readable in LaTeX source.
const ShortLength = 12

// derivedSuffix tags identities of assistant-derived sub-cards so they can
// never collide with the identity of the block they came from.
const derivedSuffix = "::derived"

// BlockID returns the stable identity for a block: a 40-char hex SHA-1 over
// the kind, normalized body, and relative file path. Equal inputs always
// produce equal identities; changing any one of the three changes the result.
func BlockID(kind, normalizedBody, filePath string) string {
	sum := sha1.Sum([]byte(kind + "|" + normalizedBody + "|" + filePath))
	return fmt.Sprintf("%x", sum)
}

// DerivedID returns the identity of a sub-card derived from a block by the
// assistant. It hashes the derived content under a distinct kind tag, so
// regenerating the same derived content for the same block never mints a
// duplicate.
func DerivedID(kind, derivedContent, filePath string) string {
	return BlockID(kind+derivedSuffix, derivedContent, filePath)
}

// ContentDigest hashes the normalized body alone. It detects edits
// independent of file path or kind: a block moved between files keeps its
// digest, an edited block changes it.
func ContentDigest(normalizedBody string) string {
	sum := sha1.Sum([]byte(normalizedBody))
	return fmt.Sprintf("%x", sum)
}

// Short truncates a full identity to its marker form.
func Short(id string) string {
	if len(id) <= ShortLength {
		return id
	}
	return id[:ShortLength]
}

// ResolveShort matches a short identity prefix from a source marker against
// the set of known full identities. It returns the full identity only when
// exactly one known identity starts with the prefix. Zero matches means the
// marker is stale or foreign; two or more means the prefix is ambiguous. Both
// cases report ok=false and the caller falls back to a freshly computed
// identity.
func ResolveShort(prefix string, known []string) (string, bool) {
	var match string
	for _, id := range known {
		if strings.HasPrefix(id, prefix) {
			if match != "" {
				return "", false
			}
			match = id
		}
	}
	if match == "" {
		return "", false
	}
	return match, true
}
