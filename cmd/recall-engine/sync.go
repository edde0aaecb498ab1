// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/recall-engine/internal/ankiconnect"
	"github.com/pdiddy/recall-engine/internal/assistant"
	"github.com/pdiddy/recall-engine/internal/engine"
	"github.com/pdiddy/recall-engine/internal/ledger"
	"github.com/pdiddy/recall-engine/internal/reconcile"
	"github.com/pdiddy/recall-engine/pkg/types"
)

// ledgerFile is the sync state location relative to the repository root.
const ledgerFile = ".recall/ledger.json"

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Extract blocks changed since the last run and sync them to Anki",
	Long: `Sync diffs the repository against the last synced commit, extracts the
recognized LaTeX environments from the changed files, and reconciles them
against the ledger: unseen blocks become new notes, edited blocks update
their existing notes, everything else is skipped.

With the assistant enabled in recall.yaml, one batched model call selects
which new blocks are worth carding today and writes the card text; if the
call fails, the run falls back to creating a plain card per unseen block.

--dry-run prints the decision plan without touching Anki, the ledger, or
any source file. --offline writes an .apkg instead of using AnkiConnect.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	repo, _ := cmd.Flags().GetString("repo")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	offline, _ := cmd.Flags().GetBool("offline")
	output, _ := cmd.Flags().GetString("output")
	since, _ := cmd.Flags().GetString("since")
	allFiles, _ := cmd.Flags().GetBool("all")
	limit, _ := cmd.Flags().GetInt("limit")

	manifest, led, err := loadWorkspace(repo)
	if err != nil {
		return err
	}

	deps := engine.Deps{
		Manifest: manifest,
		Ledger:   led,
		Anki:     ankiconnect.New(manifest.Sync),
		Changes:  engine.GitChanges{},
	}
	if manifest.Assistant.Enabled {
		backend, err := assistant.New(manifest.Assistant, loadedSecrets)
		if err != nil {
			return err
		}
		deps.Assistant = backend
	}

	opts := engine.Options{
		RepoPath:    repo,
		DryRun:      dryRun,
		Offline:     offline,
		APKGOutput:  output,
		SinceSHA:    since,
		AllFiles:    allFiles,
		LimitBlocks: limit,
	}

	summary, err := engine.Run(context.Background(), opts, deps, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d decision(s) failed", summary.Failed)
	}
	return nil
}

// loadWorkspace resolves the manifest and ledger for the repository.
func loadWorkspace(repo string) (*types.Manifest, *ledger.Ledger, error) {
	manifestPath, err := engine.FindManifest(repo)
	if err != nil {
		return nil, nil, err
	}
	manifest, err := engine.LoadManifest(manifestPath)
	if err != nil {
		return nil, nil, err
	}

	led, warnings := ledger.Load(filepath.Join(repo, ledgerFile))
	for _, warning := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	return manifest, led, nil
}

var _ reconcile.State = (*ledger.Ledger)(nil)

func init() {
	syncCmd.Flags().Bool("dry-run", false, "print the decision plan without executing it")
	syncCmd.Flags().Bool("offline", false, "write an .apkg instead of calling AnkiConnect")
	syncCmd.Flags().String("output", "", "package path for --offline (default recall-export.apkg)")
	syncCmd.Flags().String("since", "", "diff base commit (default: the ledger cursor)")
	syncCmd.Flags().Bool("all", false, "scan every tracked file, ignoring the cursor")
	syncCmd.Flags().Int("limit", 0, "cap the number of blocks processed this run")

	rootCmd.AddCommand(syncCmd)
}
