package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
	companionService "github.com/zhouzirui/companion-academy/backend/internal/service/companion"
)

var (
	seedFile   string
	seedAuthor string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert companions from a YAML file, or the built-in catalog",
	Args:  cobra.NoArgs,
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML list of companion fields")
	seedCmd.Flags().StringVar(&seedAuthor, "author", "system", "user id recorded as author")
}

// loadSeed reads companion fields from path, or returns the built-in catalog.
func loadSeed(path string) ([]companion.Fields, error) {
	if path == "" {
		return companion.Seed(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []companion.Fields
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return items, nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	items, err := loadSeed(seedFile)
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	writer := companionService.NewWriter(store, nil)
	author := caller.Caller{UserID: seedAuthor}
	for _, fields := range items {
		created, err := writer.Create(cmd.Context(), fields, author)
		if err != nil {
			return fmt.Errorf("seed %q: %w", fields.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", created.ID, created.Subject, created.Name)
	}
	return nil
}
