package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
	"github.com/zhouzirui/companion-academy/backend/internal/service/quota"
)

var (
	quotaUser     string
	quotaPlan     string
	quotaFeatures []string
	quotaRules    string
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show whether a user may create another companion",
	Args:  cobra.NoArgs,
	RunE:  runQuota,
}

func init() {
	quotaCmd.Flags().StringVar(&quotaUser, "user", "", "user id")
	quotaCmd.Flags().StringVar(&quotaPlan, "plan", "", "subscription plan")
	quotaCmd.Flags().StringSliceVar(&quotaFeatures, "feature", nil, "feature flags held by the user")
	quotaCmd.Flags().StringVar(&quotaRules, "rules", "", "YAML quota rule file")
	_ = quotaCmd.MarkFlagRequired("user")
}

func runQuota(cmd *cobra.Command, _ []string) error {
	tiers := quota.DefaultTiers()
	if quotaRules != "" {
		loaded, err := quota.LoadTiers(quotaRules)
		if err != nil {
			return err
		}
		tiers = loaded
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	decision, err := quota.NewEnforcer(store, tiers, nil).Decide(cmd.Context(), caller.Caller{
		UserID:   quotaUser,
		Plan:     quotaPlan,
		Features: quotaFeatures,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tier:      %s\n", decision.Tier)
	if decision.Unlimited {
		fmt.Fprintln(out, "limit:     unlimited")
	} else {
		fmt.Fprintf(out, "limit:     %d\n", decision.Limit)
		fmt.Fprintf(out, "owned:     %d\n", decision.Owned)
	}
	fmt.Fprintf(out, "canCreate: %t\n", decision.Allowed)
	return nil
}
