// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/recall-engine/internal/ankiconnect"
	"github.com/pdiddy/recall-engine/internal/engine"
	"github.com/pdiddy/recall-engine/internal/identity"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Cross-check the ledger against the live Anki collection",
	Long: `Reconcile compares ledger entries with the auto-tagged notes in the Anki
collection and reports drift in both directions: ledger entries whose note
was deleted in Anki, and auto-tagged notes the ledger does not know about.
Source markers that resolve to no ledger entry are listed as orphans.

With --prune, stale ledger entries are removed and unknown auto-tagged
notes are deleted from the collection. Orphan markers are never rewritten;
the next sync mints fresh identities for those blocks.`,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	repo, _ := cmd.Flags().GetString("repo")
	prune, _ := cmd.Flags().GetBool("prune")

	manifest, led, err := loadWorkspace(repo)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client := ankiconnect.New(manifest.Sync)
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("sync backend unreachable: %w", err)
	}

	noteIDs, err := client.FindNotes(ctx, "tag:auto")
	if err != nil {
		return err
	}

	// Map note -> short identity via the id: tag written at creation.
	liveNotes := make(map[int64]string)
	if len(noteIDs) > 0 {
		infos, err := client.NotesInfo(ctx, noteIDs)
		if err != nil {
			return err
		}
		for _, info := range infos {
			for _, tag := range info.Tags {
				if short, ok := strings.CutPrefix(tag, "id:"); ok {
					liveNotes[info.NoteID] = short
					break
				}
			}
		}
	}

	knownShorts := make(map[string]bool)
	for _, id := range led.IDs() {
		knownShorts[identity.Short(id)] = true
	}

	// Notes Anki has but the ledger does not.
	var unknownNotes []int64
	for noteID, short := range liveNotes {
		if !knownShorts[short] {
			unknownNotes = append(unknownNotes, noteID)
			fmt.Printf("unknown note %d (id:%s) not in ledger\n", noteID, short)
		}
	}

	// Ledger entries whose note is gone.
	liveByShort := make(map[string]bool)
	for _, short := range liveNotes {
		liveByShort[short] = true
	}
	var staleEntries []string
	for _, id := range led.IDs() {
		entry, _ := led.Get(id)
		if entry.ExternalID == nil {
			// Recorded offline; nothing to cross-check yet.
			continue
		}
		if !liveByShort[identity.Short(id)] {
			staleEntries = append(staleEntries, id)
			fmt.Printf("stale entry %s: note %d no longer in collection\n", identity.Short(id), *entry.ExternalID)
		}
	}

	// Source markers that resolve to no ledger entry. These are reported
	// only; the next sync will mint fresh identities for them.
	orphanMarkers := 0
	blocks, scanWarnings, err := engine.AllBlocks(ctx,
		engine.Options{RepoPath: repo},
		engine.Deps{Manifest: manifest, Changes: engine.GitChanges{}})
	if err != nil {
		return err
	}
	for _, warning := range scanWarnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
	}
	knownIDs := led.IDs()
	for _, b := range blocks {
		if b.MarkerID == "" {
			continue
		}
		if _, ok := identity.ResolveShort(strings.ToLower(b.MarkerID), knownIDs); ok {
			continue
		}
		orphanMarkers++
		fmt.Printf("orphan marker %s at %s:%d\n", b.MarkerID, b.FilePath, b.StartLine)
	}

	if len(unknownNotes) == 0 && len(staleEntries) == 0 && orphanMarkers == 0 {
		fmt.Println("ledger, collection, and source markers agree")
		return nil
	}

	if !prune {
		fmt.Printf("%d unknown notes, %d stale entries, %d orphan markers (use --prune to fix notes and entries)\n",
			len(unknownNotes), len(staleEntries), orphanMarkers)
		return nil
	}

	if len(unknownNotes) > 0 {
		if err := client.DeleteNotes(ctx, unknownNotes); err != nil {
			return fmt.Errorf("deleting unknown notes: %w", err)
		}
	}
	removed := led.Remove(staleEntries)
	if err := led.Save(); err != nil {
		return err
	}
	fmt.Printf("pruned %d notes and %d ledger entries\n", len(unknownNotes), removed)
	return nil
}

func init() {
	reconcileCmd.Flags().Bool("prune", false, "delete unknown notes and drop stale ledger entries")

	rootCmd.AddCommand(reconcileCmd)
}
