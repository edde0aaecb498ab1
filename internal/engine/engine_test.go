// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/recall-engine/internal/ankiconnect"
	"github.com/pdiddy/recall-engine/internal/identity"
	"github.com/pdiddy/recall-engine/internal/ledger"
	"github.com/pdiddy/recall-engine/pkg/types"
)

const headSHA = "3f786850e387550fdab836ed7e6dc881de23001b"

type fakeChanges struct {
	head  string
	files []string
	since []string
}

func (f *fakeChanges) HeadSHA(context.Context, string) (string, error) { return f.head, nil }

func (f *fakeChanges) ChangedFiles(_ context.Context, _ string, since string) ([]string, error) {
	f.since = append(f.since, since)
	return f.files, nil
}

type fakeAnki struct {
	pingErr error
	decks   []string
	added   [][]ankiconnect.Note
	updated map[int64]map[string]string
	tagged  map[int64]string
	nextID  int64
	reject  bool
}

func (f *fakeAnki) Ping(context.Context) error { return f.pingErr }

func (f *fakeAnki) CreateDeck(_ context.Context, name string) error {
	f.decks = append(f.decks, name)
	return nil
}

func (f *fakeAnki) AddNotes(_ context.Context, notes []ankiconnect.Note) ([]*int64, error) {
	f.added = append(f.added, notes)
	ids := make([]*int64, len(notes))
	for i := range notes {
		if f.reject {
			continue
		}
		f.nextID++
		id := f.nextID
		ids[i] = &id
	}
	return ids, nil
}

func (f *fakeAnki) UpdateNoteFields(_ context.Context, noteID int64, fields map[string]string) error {
	if f.updated == nil {
		f.updated = make(map[int64]map[string]string)
	}
	f.updated[noteID] = fields
	return nil
}

func (f *fakeAnki) AddTags(_ context.Context, noteIDs []int64, tags string) error {
	if f.tagged == nil {
		f.tagged = make(map[int64]string)
	}
	for _, id := range noteIDs {
		f.tagged[id] = tags
	}
	return nil
}

const sampleTex = `\section{Groups}
\begin{definition}[Group]
A group is a set with an associative operation.
\end{definition}

\begin{theorem}[Lagrange]
The order of a subgroup divides the order of the group.
\end{theorem}
`

func setupRepo(t *testing.T) (string, *types.Manifest, *ledger.Ledger) {
	t.Helper()
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "notes", "algebra.tex"), []byte(sampleTex), 0o644))

	m := &types.Manifest{
		Courses: map[string]types.CourseConfig{
			"algebra": {Paths: []string{"notes/**/*.tex"}, Deck: "Math::Algebra", Priority: 1},
		},
		Kinds:         types.DefaultKinds,
		DailyNewLimit: 8,
		Assistant:     types.AssistantConfig{NeighborContextLines: 20},
	}

	led, warnings := ledger.Load(filepath.Join(repo, ".recall", "ledger.json"))
	require.Empty(t, warnings)
	return repo, m, led
}

func runDeps(m *types.Manifest, led *ledger.Ledger, anki Anki, ch Changes) Deps {
	return Deps{Manifest: m, Ledger: led, Anki: anki, Changes: ch}
}

func TestRunCreatesNotes(t *testing.T) {
	repo, m, led := setupRepo(t)
	anki := &fakeAnki{}
	changes := &fakeChanges{head: headSHA, files: []string{"notes/algebra.tex"}}

	var out bytes.Buffer
	summary, err := Run(context.Background(), Options{RepoPath: repo}, runDeps(m, led, anki, changes), &out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Files)
	assert.Contains(t, anki.decks, "Math::Algebra")
	require.Len(t, anki.added, 1)
	assert.Len(t, anki.added[0], 2)

	// Cursor advanced and entries recorded with backend IDs.
	assert.Equal(t, headSHA, led.Cursor())
	assert.Len(t, led.IDs(), 2)
	for _, id := range led.IDs() {
		assert.NotNil(t, led.ExternalID(id))
	}

	// Markers written into the source.
	src, err := os.ReadFile(filepath.Join(repo, "notes", "algebra.tex"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "% recall-id: ")

	assert.Contains(t, out.String(), "created ")
	assert.Contains(t, out.String(), "2 created")
}

func TestRunUpToDate(t *testing.T) {
	repo, m, led := setupRepo(t)
	led.SetCursor(headSHA)
	changes := &fakeChanges{head: headSHA}

	var out bytes.Buffer
	summary, err := Run(context.Background(), Options{RepoPath: repo}, runDeps(m, led, &fakeAnki{}, changes), &out)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Blocks)
	assert.Contains(t, out.String(), "up to date")
	assert.Empty(t, changes.since, "no diff should run when the cursor is at HEAD")
}

func TestRunSecondPassSkips(t *testing.T) {
	repo, m, led := setupRepo(t)
	anki := &fakeAnki{}
	changes := &fakeChanges{head: headSHA, files: []string{"notes/algebra.tex"}}
	ctx := context.Background()

	_, err := Run(ctx, Options{RepoPath: repo}, runDeps(m, led, anki, changes), &bytes.Buffer{})
	require.NoError(t, err)

	// Same content again at a new HEAD: marker resolution maps everything
	// back to known, unchanged identities.
	changes.head = "89e6c98d92887913cadf06b2adb97f26cde4849b"
	summary, err := Run(ctx, Options{RepoPath: repo, AllFiles: true}, runDeps(m, led, anki, changes), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 2, summary.Skipped)
	assert.Len(t, led.IDs(), 2, "no duplicate entries after a re-run")
}

func TestRunUpdatesChangedBlock(t *testing.T) {
	repo, m, led := setupRepo(t)
	anki := &fakeAnki{}
	changes := &fakeChanges{head: headSHA, files: []string{"notes/algebra.tex"}}
	ctx := context.Background()

	_, err := Run(ctx, Options{RepoPath: repo}, runDeps(m, led, anki, changes), &bytes.Buffer{})
	require.NoError(t, err)

	// Edit the definition body. The marker keeps the identity stable, so
	// the change is an update, not a new note.
	src, err := os.ReadFile(filepath.Join(repo, "notes", "algebra.tex"))
	require.NoError(t, err)
	edited := bytes.Replace(src, []byte("associative operation"), []byte("binary associative operation"), 1)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "notes", "algebra.tex"), edited, 0o644))

	changes.head = "89e6c98d92887913cadf06b2adb97f26cde4849b"
	summary, err := Run(ctx, Options{RepoPath: repo, AllFiles: true}, runDeps(m, led, anki, changes), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Created)
	require.Len(t, anki.updated, 1)
	for _, tags := range anki.tagged {
		assert.Contains(t, tags, "rev:")
	}
	assert.Len(t, led.IDs(), 2)
}

func TestRunDryRunMutatesNothing(t *testing.T) {
	repo, m, led := setupRepo(t)
	anki := &fakeAnki{}
	changes := &fakeChanges{head: headSHA, files: []string{"notes/algebra.tex"}}

	var out bytes.Buffer
	summary, err := Run(context.Background(), Options{RepoPath: repo, DryRun: true}, runDeps(m, led, anki, changes), &out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Created, "plan still reports what would happen")
	assert.Empty(t, anki.added)
	assert.Empty(t, led.IDs())
	assert.Empty(t, led.Cursor())
	assert.Contains(t, out.String(), "action: create")

	src, err := os.ReadFile(filepath.Join(repo, "notes", "algebra.tex"))
	require.NoError(t, err)
	assert.NotContains(t, string(src), "recall-id", "dry run must not write markers")
}

func TestRunOfflineExportsPackage(t *testing.T) {
	repo, m, led := setupRepo(t)
	changes := &fakeChanges{head: headSHA, files: []string{"notes/algebra.tex"}}
	output := filepath.Join(t.TempDir(), "out.apkg")

	var out bytes.Buffer
	summary, err := Run(context.Background(),
		Options{RepoPath: repo, Offline: true, APKGOutput: output},
		runDeps(m, led, nil, changes), &out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Created)
	_, statErr := os.Stat(output)
	require.NoError(t, statErr)

	// Offline entries carry no backend ID until an online run promotes them.
	for _, id := range led.IDs() {
		assert.Nil(t, led.ExternalID(id))
	}
}

func TestRunOfflineThenOnlinePromotes(t *testing.T) {
	repo, m, led := setupRepo(t)
	changes := &fakeChanges{head: headSHA, files: []string{"notes/algebra.tex"}}
	ctx := context.Background()

	_, err := Run(ctx, Options{RepoPath: repo, Offline: true, APKGOutput: filepath.Join(t.TempDir(), "o.apkg")},
		runDeps(m, led, nil, changes), &bytes.Buffer{})
	require.NoError(t, err)

	// Force a rescan: edit one block so it classifies as update, which the
	// online path must turn into a create because no note exists yet.
	src, err := os.ReadFile(filepath.Join(repo, "notes", "algebra.tex"))
	require.NoError(t, err)
	edited := bytes.Replace(src, []byte("divides the order"), []byte("always divides the order"), 1)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "notes", "algebra.tex"), edited, 0o644))

	anki := &fakeAnki{}
	changes.head = "89e6c98d92887913cadf06b2adb97f26cde4849b"
	summary, err := Run(ctx, Options{RepoPath: repo, AllFiles: true}, runDeps(m, led, anki, changes), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 0, summary.Updated)
	require.Len(t, anki.added, 1)
}

func TestRunRejectedNotesCountAsFailed(t *testing.T) {
	repo, m, led := setupRepo(t)
	anki := &fakeAnki{reject: true}
	changes := &fakeChanges{head: headSHA, files: []string{"notes/algebra.tex"}}

	var out bytes.Buffer
	summary, err := Run(context.Background(), Options{RepoPath: repo}, runDeps(m, led, anki, changes), &out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Failed)
	assert.True(t, summary.HasFailures())
	assert.Empty(t, led.IDs())
	assert.Contains(t, out.String(), "rejected by backend")
}

func TestRunLimitBlocks(t *testing.T) {
	repo, m, led := setupRepo(t)
	anki := &fakeAnki{}
	changes := &fakeChanges{head: headSHA, files: []string{"notes/algebra.tex"}}

	summary, err := Run(context.Background(), Options{RepoPath: repo, LimitBlocks: 1},
		runDeps(m, led, anki, changes), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Blocks)
	assert.Equal(t, 1, summary.Created)
}

func TestAllBlocksScansEverything(t *testing.T) {
	repo, m, led := setupRepo(t)
	anki := &fakeAnki{}
	changes := &fakeChanges{head: headSHA, files: []string{"notes/algebra.tex"}}
	ctx := context.Background()

	// Sync first so markers are written into the source.
	_, err := Run(ctx, Options{RepoPath: repo}, runDeps(m, led, anki, changes), &bytes.Buffer{})
	require.NoError(t, err)

	blocks, warnings, err := AllBlocks(ctx, Options{RepoPath: repo}, runDeps(m, led, anki, changes))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, blocks, 2)
	for _, b := range blocks {
		assert.NotEmpty(t, b.MarkerID)
	}
	// The full scan ignores the cursor.
	assert.Equal(t, "", changes.since[len(changes.since)-1])
}

func TestRunMarkerKeepsIdentityAcrossEdit(t *testing.T) {
	repo, m, led := setupRepo(t)
	anki := &fakeAnki{}
	changes := &fakeChanges{head: headSHA, files: []string{"notes/algebra.tex"}}
	ctx := context.Background()

	_, err := Run(ctx, Options{RepoPath: repo}, runDeps(m, led, anki, changes), &bytes.Buffer{})
	require.NoError(t, err)
	originalIDs := led.IDs()

	src, err := os.ReadFile(filepath.Join(repo, "notes", "algebra.tex"))
	require.NoError(t, err)
	edited := bytes.Replace(src, []byte("A group is a set"), []byte("A group is a nonempty set"), 1)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "notes", "algebra.tex"), edited, 0o644))

	changes.head = "89e6c98d92887913cadf06b2adb97f26cde4849b"
	_, err = Run(ctx, Options{RepoPath: repo, AllFiles: true}, runDeps(m, led, anki, changes), &bytes.Buffer{})
	require.NoError(t, err)

	assert.ElementsMatch(t, originalIDs, led.IDs(), "marker must pin the identity through edits")
}

func TestShortSig(t *testing.T) {
	d := types.Decision{
		Identity: headSHA,
		Block:    types.ExtractedBlock{Kind: "theorem", FilePath: "a.tex", StartLine: 3, EndLine: 5},
	}
	sig := shortSig(d)
	assert.Contains(t, sig, identity.Short(headSHA))
	assert.Contains(t, sig, "a.tex")
}
