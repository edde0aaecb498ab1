// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine drives one end-to-end run: change detection, extraction,
// reconciliation, and execution of the resulting decisions against the
// sync backend or an offline package.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pdiddy/recall-engine/internal/ankiconnect"
	"github.com/pdiddy/recall-engine/internal/apkg"
	"github.com/pdiddy/recall-engine/internal/cards"
	"github.com/pdiddy/recall-engine/internal/gitchange"
	"github.com/pdiddy/recall-engine/internal/ledger"
	"github.com/pdiddy/recall-engine/internal/marker"
	"github.com/pdiddy/recall-engine/internal/reconcile"
	"github.com/pdiddy/recall-engine/internal/texparse"
	"github.com/pdiddy/recall-engine/pkg/types"
)

// Anki is the subset of the AnkiConnect client the engine exercises.
// Tests supply fakes.
type Anki interface {
	Ping(ctx context.Context) error
	CreateDeck(ctx context.Context, name string) error
	AddNotes(ctx context.Context, notes []ankiconnect.Note) ([]*int64, error)
	UpdateNoteFields(ctx context.Context, noteID int64, fields map[string]string) error
	AddTags(ctx context.Context, noteIDs []int64, tags string) error
}

// Changes abstracts Git so tests run without a repository.
type Changes interface {
	HeadSHA(ctx context.Context, repo string) (string, error)
	ChangedFiles(ctx context.Context, repo, since string) ([]string, error)
}

// GitChanges is the production Changes implementation backed by the git CLI.
type GitChanges struct{}

func (GitChanges) HeadSHA(ctx context.Context, repo string) (string, error) {
	return gitchange.HeadSHA(ctx, repo)
}

func (GitChanges) ChangedFiles(ctx context.Context, repo, since string) ([]string, error) {
	return gitchange.ChangedFiles(ctx, repo, since)
}

// Options are the per-run flags.
type Options struct {
	RepoPath string

	// DryRun prints the plan without touching the backend, the ledger, or
	// any source file.
	DryRun bool

	// Offline writes an .apkg instead of talking to AnkiConnect.
	Offline bool

	// APKGOutput is the package path for offline runs.
	APKGOutput string

	// SinceSHA overrides the ledger cursor as the diff base.
	SinceSHA string

	// AllFiles ignores the cursor and scans every tracked file.
	AllFiles bool

	// LimitBlocks caps the candidates per run; 0 means no cap.
	LimitBlocks int
}

// Deps are the collaborators one run needs. Assistant may be nil when the
// manifest disables it.
type Deps struct {
	Manifest  *types.Manifest
	Ledger    *ledger.Ledger
	Anki      Anki
	Assistant reconcile.Assistant
	Changes   Changes
}

// Summary holds counts from one run.
type Summary struct {
	Files    int
	Blocks   int
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Warnings []string
}

// HasFailures reports whether any decision failed to execute.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Run executes one sync. Status lines go to w as the run progresses; the
// returned summary aggregates them.
func Run(ctx context.Context, opts Options, deps Deps, w io.Writer) (Summary, error) {
	var summary Summary

	head, err := deps.Changes.HeadSHA(ctx, opts.RepoPath)
	if err != nil {
		return summary, fmt.Errorf("resolving HEAD: %w", err)
	}

	since := opts.SinceSHA
	if since == "" && !opts.AllFiles {
		since = deps.Ledger.Cursor()
	}
	if opts.AllFiles {
		since = ""
	}
	if since == head {
		fmt.Fprintf(w, "up to date at %s\n", head[:8])
		return summary, nil
	}

	files, err := deps.Changes.ChangedFiles(ctx, opts.RepoPath, since)
	if err != nil {
		return summary, fmt.Errorf("listing changed files: %w", err)
	}

	cands, warnings, err := collectCandidates(deps.Manifest, opts, files)
	if err != nil {
		return summary, err
	}
	summary.Warnings = append(summary.Warnings, warnings...)
	summary.Files = countFiles(cands)
	summary.Blocks = len(cands)

	if len(cands) == 0 {
		fmt.Fprintf(w, "no blocks in %d changed files\n", len(files))
		return summary, finishRun(opts, deps, head)
	}

	resolved, markerWarnings := reconcile.ResolveMarkers(deps.Ledger, extractBlocks(cands))
	for i := range cands {
		cands[i].Block = resolved[i]
	}
	summary.Warnings = append(summary.Warnings, markerWarnings...)

	decisions, assisted := decide(ctx, deps, cands, head, &summary)

	if opts.DryRun {
		if err := WritePlan(w, decisions, summary.Warnings); err != nil {
			return summary, err
		}
		tally(decisions, &summary)
		return summary, nil
	}

	if assisted {
		if err := deps.Ledger.RecordAudit("last_batch", decisions, deps.Manifest.Assistant.Model, deps.Manifest.Assistant.Provider); err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("recording audit: %v", err))
		}
	}

	if opts.Offline {
		if err := executeOffline(opts, deps, decisions, &summary, w); err != nil {
			return summary, err
		}
	} else {
		if err := executeOnline(ctx, opts, deps, decisions, &summary, w); err != nil {
			return summary, err
		}
	}

	for _, warning := range summary.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	fmt.Fprintf(w, "done: %d created, %d updated, %d skipped, %d failed\n",
		summary.Created, summary.Updated, summary.Skipped, summary.Failed)

	return summary, finishRun(opts, deps, head)
}

// AllCards extracts every block the manifest claims, ignoring the cursor
// and the ledger, and maps each to its direct card. Used by the export
// command to rebuild a full package.
func AllCards(ctx context.Context, opts Options, deps Deps) ([]types.Card, []string, error) {
	head, err := deps.Changes.HeadSHA(ctx, opts.RepoPath)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	files, err := deps.Changes.ChangedFiles(ctx, opts.RepoPath, "")
	if err != nil {
		return nil, nil, fmt.Errorf("listing files: %w", err)
	}

	cands, warnings, err := collectCandidates(deps.Manifest, opts, files)
	if err != nil {
		return nil, nil, err
	}

	out := make([]types.Card, 0, len(cands))
	for _, c := range cands {
		mapper := &cards.Mapper{Course: c.Course, CommitSHA: head}
		out = append(out, mapper.Map(c.Block, c.Deck))
	}
	return out, warnings, nil
}

// AllBlocks extracts every block the manifest claims, ignoring the cursor.
// Used by the reconcile command to cross-check source markers against the
// ledger.
func AllBlocks(ctx context.Context, opts Options, deps Deps) ([]types.ExtractedBlock, []string, error) {
	files, err := deps.Changes.ChangedFiles(ctx, opts.RepoPath, "")
	if err != nil {
		return nil, nil, fmt.Errorf("listing files: %w", err)
	}
	cands, warnings, err := collectCandidates(deps.Manifest, opts, files)
	if err != nil {
		return nil, nil, err
	}
	return extractBlocks(cands), warnings, nil
}

// collectCandidates extracts blocks from every changed file each course
// claims. A file matched by several courses goes to the first course in
// name order.
func collectCandidates(m *types.Manifest, opts Options, files []string) ([]reconcile.Candidate, []string, error) {
	var cands []reconcile.Candidate
	var warnings []string
	claimed := make(map[string]bool)

	for _, courseName := range sortedCourses(m.Courses) {
		course := m.Courses[courseName]
		for _, path := range gitchange.MatchPatterns(files, course.Paths) {
			if claimed[path] {
				continue
			}
			claimed[path] = true

			content, err := os.ReadFile(filepath.Join(opts.RepoPath, path))
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("reading %s: %v", path, err))
				continue
			}

			blocks := texparse.Extract(string(content), path, m.Kinds)
			for _, b := range blocks {
				b.NeighborContext = texparse.NeighborContext(string(content),
					b.StartLine, b.EndLine, m.Assistant.NeighborContextLines)
				cands = append(cands, reconcile.Candidate{
					Block:    b,
					Course:   courseName,
					Deck:     course.Deck,
					Priority: course.Priority,
				})
			}
		}
	}

	if opts.LimitBlocks > 0 && len(cands) > opts.LimitBlocks {
		cands = cands[:opts.LimitBlocks]
	}
	return cands, warnings, nil
}

// decide picks the reconciliation path. The assisted path engages only
// when the manifest enables it and a backend is wired; it reports whether
// assisted decisions were produced.
func decide(ctx context.Context, deps Deps, cands []reconcile.Candidate, head string, summary *Summary) ([]types.Decision, bool) {
	if deps.Manifest.Assistant.Enabled && deps.Assistant != nil {
		outcome := reconcile.BatchAssisted(ctx, deps.Ledger, deps.Assistant, cands, reconcile.BatchConfig{
			Quota:              deps.Manifest.DailyNewLimit,
			MaxCardsPerBlock:   deps.Manifest.Assistant.MaxCardsPerBlock,
			ParaphraseStrength: deps.Manifest.Assistant.ParaphraseStrength,
		}, head)
		summary.Warnings = append(summary.Warnings, outcome.Warnings...)
		return outcome.Decisions, !outcome.Fallback
	}
	return reconcile.PerBlock(deps.Ledger, cands, head), false
}

// executeOnline applies decisions through AnkiConnect. Creates are batched
// into one addNotes call; each update is a field rewrite plus a revision
// tag.
func executeOnline(ctx context.Context, opts Options, deps Deps, decisions []types.Decision, summary *Summary, w io.Writer) error {
	if err := deps.Anki.Ping(ctx); err != nil {
		return fmt.Errorf("sync backend unreachable: %w", err)
	}

	for _, deck := range deckNames(decisions) {
		if err := deps.Anki.CreateDeck(ctx, deck); err != nil {
			return fmt.Errorf("creating deck %s: %w", deck, err)
		}
	}

	var creates []types.Decision
	for _, d := range decisions {
		switch d.Action {
		case types.ActionSkip:
			summary.Skipped++
		case types.ActionCreate:
			creates = append(creates, d)
		case types.ActionUpdate:
			// An entry without an external ID was recorded offline; the
			// note does not exist in the backend yet.
			if deps.Ledger.ExternalID(d.Identity) == nil {
				creates = append(creates, d)
				continue
			}
			if err := applyUpdate(ctx, deps, d); err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", shortSig(d), err)
				summary.Failed++
				continue
			}
			fmt.Fprintf(w, "updated %s\n", shortSig(d))
			summary.Updated++
		}
	}

	if len(creates) == 0 {
		return nil
	}

	notes := make([]ankiconnect.Note, len(creates))
	for i, d := range creates {
		notes[i] = ankiconnect.NoteFromCard(d.Card)
	}

	ids, err := deps.Anki.AddNotes(ctx, notes)
	if err != nil {
		summary.Failed += len(creates)
		return fmt.Errorf("adding notes: %w", err)
	}

	for i, d := range creates {
		if ids[i] == nil {
			fmt.Fprintf(w, "failed  %s: rejected by backend\n", shortSig(d))
			summary.Failed++
			continue
		}
		deps.Ledger.Upsert(d.Identity, ids[i], d.Card.Deck, d.Card.ContentDigest)
		ensureMarker(opts, d, summary)
		fmt.Fprintf(w, "created %s\n", shortSig(d))
		summary.Created++
	}
	return nil
}

func applyUpdate(ctx context.Context, deps Deps, d types.Decision) error {
	noteID := *deps.Ledger.ExternalID(d.Identity)
	if err := deps.Anki.UpdateNoteFields(ctx, noteID, d.Card.ModelFields()); err != nil {
		return err
	}
	if err := deps.Anki.AddTags(ctx, []int64{noteID}, cards.RevisionTag()); err != nil {
		return err
	}
	deps.Ledger.Upsert(d.Identity, &noteID, d.Card.Deck, d.Card.ContentDigest)
	return nil
}

// executeOffline writes creates and updates into an .apkg. Entries are
// recorded with no external ID; a later online run promotes them.
func executeOffline(opts Options, deps Deps, decisions []types.Decision, summary *Summary, w io.Writer) error {
	var toExport []types.Card
	for _, d := range decisions {
		switch d.Action {
		case types.ActionSkip:
			summary.Skipped++
		case types.ActionCreate, types.ActionUpdate:
			toExport = append(toExport, d.Card)
			deps.Ledger.Upsert(d.Identity, deps.Ledger.ExternalID(d.Identity), d.Card.Deck, d.Card.ContentDigest)
			ensureMarker(opts, d, summary)
			if d.Action == types.ActionCreate {
				summary.Created++
			} else {
				summary.Updated++
			}
		}
	}

	if len(toExport) == 0 {
		fmt.Fprintf(w, "nothing to export\n")
		return nil
	}

	output := opts.APKGOutput
	if output == "" {
		output = "recall-export.apkg"
	}
	if err := apkg.Build(toExport, output); err != nil {
		return fmt.Errorf("building package: %w", err)
	}
	fmt.Fprintf(w, "exported %d cards to %s\n", len(toExport), output)
	return nil
}

// ensureMarker persists the block identity into the source file. Derived
// cards share their block's marker, so only the block identity is written,
// once per source location.
func ensureMarker(opts Options, d types.Decision, summary *Summary) {
	if d.Block.FilePath == "" {
		return
	}
	path := filepath.Join(opts.RepoPath, d.Block.FilePath)
	if _, err := marker.Ensure(path, d.Block.StartLine, d.Block.Identity); err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("writing marker in %s: %v", d.Block.FilePath, err))
	}
}

func finishRun(opts Options, deps Deps, head string) error {
	if opts.DryRun {
		return nil
	}
	deps.Ledger.SetCursor(head)
	if err := deps.Ledger.Save(); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}

func tally(decisions []types.Decision, summary *Summary) {
	for _, d := range decisions {
		switch d.Action {
		case types.ActionCreate:
			summary.Created++
		case types.ActionUpdate:
			summary.Updated++
		case types.ActionSkip:
			summary.Skipped++
		}
	}
}

func deckNames(decisions []types.Decision) []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range decisions {
		if d.Action == types.ActionSkip || d.Card.Deck == "" || seen[d.Card.Deck] {
			continue
		}
		seen[d.Card.Deck] = true
		names = append(names, d.Card.Deck)
	}
	sort.Strings(names)
	return names
}

func sortedCourses(courses map[string]types.CourseConfig) []string {
	names := make([]string, 0, len(courses))
	for name := range courses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func extractBlocks(cands []reconcile.Candidate) []types.ExtractedBlock {
	blocks := make([]types.ExtractedBlock, len(cands))
	for i, c := range cands {
		blocks[i] = c.Block
	}
	return blocks
}

func countFiles(cands []reconcile.Candidate) int {
	seen := make(map[string]bool)
	for _, c := range cands {
		seen[c.Block.FilePath] = true
	}
	return len(seen)
}

func shortSig(d types.Decision) string {
	return fmt.Sprintf("%s %s", d.Identity[:12], d.Block.Signature())
}
