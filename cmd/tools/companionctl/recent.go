package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/history"
)

var (
	recentUser  string
	recentLimit int

	launchUser      string
	launchCompanion string
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently launched companions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRecent,
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Record a session launch",
	Args:  cobra.NoArgs,
	RunE:  runLaunch,
}

func init() {
	recentCmd.Flags().StringVar(&recentUser, "user", "", "restrict to one user id")
	recentCmd.Flags().IntVar(&recentLimit, "limit", history.DefaultLimit, "history entries to read")

	launchCmd.Flags().StringVar(&launchUser, "user", "", "user id launching the session")
	launchCmd.Flags().StringVar(&launchCompanion, "companion", "", "companion id")
	_ = launchCmd.MarkFlagRequired("user")
	_ = launchCmd.MarkFlagRequired("companion")
}

func runRecent(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	aggregator := history.NewAggregator(store)
	var items []companion.Companion
	if recentUser != "" {
		items, err = aggregator.RecentForUser(cmd.Context(), recentUser, recentLimit)
	} else {
		items, err = aggregator.RecentGlobal(cmd.Context(), recentLimit)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBJECT\tNAME\tTOPIC")
	for _, c := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Subject, c.Name, c.Topic)
	}
	return tw.Flush()
}

func runLaunch(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.GetCompanion(cmd.Context(), launchCompanion); err != nil {
		return fmt.Errorf("companion %s: %w", launchCompanion, err)
	}
	entry, err := history.NewAggregator(store).RecordLaunch(cmd.Context(), caller.Caller{UserID: launchUser}, launchCompanion)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", entry.ID, entry.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
