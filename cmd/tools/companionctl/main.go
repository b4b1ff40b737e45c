// Command companionctl administers a sqlite companion store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/companion-academy/backend/internal/storage/sqlite"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:           "companionctl",
	Short:         "Inspect and seed the companion store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "companions.db", "sqlite database path")
	rootCmd.AddCommand(seedCmd, recentCmd, quotaCmd, launchCmd)
}

func openStore(ctx context.Context) (*sqlite.Store, error) {
	store, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	return store, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
