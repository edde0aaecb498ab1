// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/recall-engine/internal/identity"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or repair the sync ledger",
	Long: `State operates on the ledger that records which blocks have been synced.
Use subcommands to show statistics, list entries, remove identities, move
the Git cursor, or wipe the ledger entirely.`,
}

var stateStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry counts, per-deck totals, and the Git cursor",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		_, led, err := loadWorkspace(repo)
		if err != nil {
			return err
		}

		stats := led.Stats()
		cursor := stats.Cursor
		if cursor == "" {
			cursor = "(none)"
		}
		fmt.Printf("entries: %d\ncursor:  %s\n", stats.Entries, cursor)

		decks := make([]string, 0, len(stats.Decks))
		for deck := range stats.Decks {
			decks = append(decks, deck)
		}
		sort.Strings(decks)
		for _, deck := range decks {
			fmt.Printf("  %-30s %d\n", deck, stats.Decks[deck])
		}
		return nil
	},
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		_, led, err := loadWorkspace(repo)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		for _, id := range led.IDs() {
			entry, _ := led.Get(id)
			line := map[string]any{
				"identity": id,
				"short":    identity.Short(id),
				"deck":     entry.Deck,
				"digest":   identity.Short(entry.ContentDigest),
			}
			if entry.ExternalID != nil {
				line["note_id"] = *entry.ExternalID
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
		return nil
	},
}

var stateRemoveCmd = &cobra.Command{
	Use:   "remove <identity>...",
	Short: "Remove entries so their blocks are treated as new next run",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		_, led, err := loadWorkspace(repo)
		if err != nil {
			return err
		}

		// Accept short prefixes the same way markers do.
		ids := make([]string, 0, len(args))
		for _, arg := range args {
			if full, ok := identity.ResolveShort(arg, led.IDs()); ok {
				ids = append(ids, full)
				continue
			}
			ids = append(ids, arg)
		}

		removed := led.Remove(ids)
		if err := led.Save(); err != nil {
			return err
		}
		fmt.Printf("removed %d entries\n", removed)
		return nil
	},
}

var stateSetCursorCmd = &cobra.Command{
	Use:   "set-cursor <commit>",
	Short: "Move the Git cursor, changing which commits the next run diffs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		_, led, err := loadWorkspace(repo)
		if err != nil {
			return err
		}

		led.SetCursor(args[0])
		if err := led.Save(); err != nil {
			return err
		}
		fmt.Printf("cursor set to %s\n", args[0])
		return nil
	},
}

var stateClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the ledger; the next run treats every block as new",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		confirmed, _ := cmd.Flags().GetBool("yes")
		if !confirmed {
			return fmt.Errorf("refusing to clear without --yes")
		}

		_, led, err := loadWorkspace(repo)
		if err != nil {
			return err
		}

		led.Clear()
		if err := led.Save(); err != nil {
			return err
		}
		fmt.Println("ledger cleared")
		return nil
	},
}

var stateAuditCmd = &cobra.Command{
	Use:   "audit [key]",
	Short: "Show the recorded assistant exchange for a batch",
	Long: `Audit prints the stored request/response payload for an assisted batch.
The default key is "last_batch", the most recent assisted run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		_, led, err := loadWorkspace(repo)
		if err != nil {
			return err
		}

		key := "last_batch"
		if len(args) > 0 {
			key = args[0]
		}
		record, ok := led.Audit(key)
		if !ok {
			return fmt.Errorf("no audit record %q", key)
		}

		fmt.Printf("model:    %s\nprovider: %s\nwhen:     %s\n", record.Model, record.Provider, record.Timestamp)
		var pretty any
		if err := json.Unmarshal(record.Payload, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Println(string(record.Payload))
		}
		return nil
	},
}

func init() {
	stateClearCmd.Flags().Bool("yes", false, "confirm the wipe")

	stateCmd.AddCommand(stateStatsCmd)
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateRemoveCmd)
	stateCmd.AddCommand(stateSetCursorCmd)
	stateCmd.AddCommand(stateClearCmd)
	stateCmd.AddCommand(stateAuditCmd)
	rootCmd.AddCommand(stateCmd)
}
