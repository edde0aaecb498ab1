// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the recall-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/recall-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the recall-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "recall-engine",
	Short: "Sync LaTeX lecture notes into spaced-repetition flashcards",
	Long: `recall-engine extracts definition, theorem, and example environments from
the LaTeX sources of a Git repository and keeps them synchronized with an
Anki collection. Blocks get content-addressed identities so edits update
the existing card instead of creating a duplicate, and each run only
touches the files changed since the last one.

The sync subcommand runs the pipeline end to end; state inspects or
repairs the ledger; export writes an .apkg for machines with no running
Anki.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./recall-engine.yaml or ~/.config/recall-engine/config.yaml)")
	rootCmd.PersistentFlags().String("repo", ".", "path to the notes repository")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("recall-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "recall-engine"))
		}
	}

	viper.SetEnvPrefix("RECALL_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
