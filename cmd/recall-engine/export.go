// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/recall-engine/internal/apkg"
	"github.com/pdiddy/recall-engine/internal/engine"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every extracted block to an .apkg package",
	Long: `Export scans all tracked files, maps every recognized block to a card,
and writes an Anki package. Unlike sync --offline it ignores the cursor
and the ledger, so the package always contains the full collection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		output, _ := cmd.Flags().GetString("output")

		manifest, led, err := loadWorkspace(repo)
		if err != nil {
			return err
		}

		cards, warnings, err := engine.AllCards(context.Background(), engine.Options{RepoPath: repo}, engine.Deps{
			Manifest: manifest,
			Ledger:   led,
			Changes:  engine.GitChanges{},
		})
		if err != nil {
			return err
		}
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
		}
		if len(cards) == 0 {
			return fmt.Errorf("no blocks found to export")
		}

		if err := apkg.Build(cards, output); err != nil {
			return err
		}
		fmt.Printf("exported %d cards to %s\n", len(cards), output)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "recall-export.apkg", "package output path")

	rootCmd.AddCommand(exportCmd)
}
