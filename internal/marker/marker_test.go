// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package marker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pdiddy/recall-engine/internal/identity"
	"github.com/pdiddy/recall-engine/internal/texparse"
)

const sampleID = "3f786850e387550fdab836ed7e6dc881de23001b"

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.tex")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEnsureInsertsMarker(t *testing.T) {
	src := "\\section{Groups}\n\\begin{definition}[Group]\nA group is a set.\n\\end{definition}\n"
	path := writeTemp(t, src)

	changed, err := Ensure(path, 2, sampleID)
	require.NoError(t, err)
	require.True(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	require.Equal(t, "% recall-id: "+identity.Short(sampleID), lines[1])
	require.Equal(t, "\\begin{definition}[Group]", lines[2])
}

func TestEnsureIsIdempotent(t *testing.T) {
	src := "\\begin{theorem}\nEvery finite group has an identity element.\n\\end{theorem}\n"
	path := writeTemp(t, src)

	changed, err := Ensure(path, 1, sampleID)
	require.NoError(t, err)
	require.True(t, changed)

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	changed, err = Ensure(path, 2, sampleID) // block shifted down by the insert
	require.NoError(t, err)
	require.False(t, changed)

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestEnsureRewritesStaleMarker(t *testing.T) {
	src := "% recall-id: aaaaaaaaaaaa\n\\begin{lemma}\nSomething.\n\\end{lemma}\n"
	path := writeTemp(t, src)

	changed, err := Ensure(path, 2, sampleID)
	require.NoError(t, err)
	require.True(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	require.Equal(t, "% recall-id: "+identity.Short(sampleID), lines[0])
	// Rewritten in place, not inserted twice.
	require.Equal(t, 1, strings.Count(string(data), "recall-id"))
}

// A marker separated from the block by prose must still be recognized, the
// same way extraction recognizes it, or every run would stack a fresh
// marker on the block.
func TestEnsureFindsMarkerBehindProse(t *testing.T) {
	src := "% recall-id: " + identity.Short(sampleID) + "\n" +
		"Some connecting prose about the next result.\n" +
		"\\begin{corollary}\nBody.\n\\end{corollary}\n"
	path := writeTemp(t, src)

	changed, err := Ensure(path, 3, sampleID)
	require.NoError(t, err)
	require.False(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(data), "recall-id"))
	require.Equal(t, src, string(data))
}

func TestEnsureRewritesInlineMarker(t *testing.T) {
	src := "\\label{cor:main} % id: bbbbbbbbbbbb\n\\begin{corollary}\nBody.\n\\end{corollary}\n"
	path := writeTemp(t, src)

	changed, err := Ensure(path, 2, sampleID)
	require.NoError(t, err)
	require.True(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	require.Equal(t, "\\label{cor:main} % recall-id: "+identity.Short(sampleID), lines[0])
	require.Equal(t, 1, strings.Count(string(data), "id:"))
}

func TestEnsureKeepsFullLengthMarkerForSameIdentity(t *testing.T) {
	src := "% recall-id: " + sampleID + "\n\\begin{remark}\nBody.\n\\end{remark}\n"
	path := writeTemp(t, src)

	changed, err := Ensure(path, 2, sampleID)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestEnsurePreservesIndentation(t *testing.T) {
	src := "text\n  \\begin{example}\n  Body.\n  \\end{example}\n"
	path := writeTemp(t, src)

	changed, err := Ensure(path, 2, sampleID)
	require.NoError(t, err)
	require.True(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "  % recall-id: "+identity.Short(sampleID), strings.Split(string(data), "\n")[1])
}

func TestEnsureLineOutOfRange(t *testing.T) {
	path := writeTemp(t, "one line\n")
	_, err := Ensure(path, 9, sampleID)
	require.Error(t, err)
}

// Injecting a marker and re-extracting must recover the same identity the
// marker names, so identities survive body edits between runs.
func TestEnsureRoundTripsThroughExtraction(t *testing.T) {
	src := "\\begin{definition}[Metric]\nA metric is a distance function.\n\\end{definition}\n"
	path := writeTemp(t, src)

	blocks := texparse.Extract(src, "notes.tex", []string{"definition"})
	require.Len(t, blocks, 1)
	id := blocks[0].Identity

	changed, err := Ensure(path, blocks[0].StartLine, id)
	require.NoError(t, err)
	require.True(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	again := texparse.Extract(string(data), "notes.tex", []string{"definition"})
	require.Len(t, again, 1)
	require.Equal(t, identity.Short(id), again[0].MarkerID)
}
