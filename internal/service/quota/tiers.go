package quota

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
)

// Entitlement names granted by the subscription provider.
const (
	PlanPro           = "pro"
	FeatureThreeLimit = "3_companion_limit"
	FeatureTenLimit   = "10_companion_limit"
	TierUnlimited     = "unlimited"
	TierNone          = "none"
)

// Rule grants Limit owned companions to callers holding Feature.
type Rule struct {
	Feature string `yaml:"feature"`
	Limit   int    `yaml:"limit"`
}

// Tiers is the ordered quota rule list. Resolution is first match wins:
// UnlimitedPlan, then Rules in order, then a quota of zero.
type Tiers struct {
	UnlimitedPlan string `yaml:"unlimited_plan"`
	Rules         []Rule `yaml:"rules"`
}

// DefaultTiers mirrors the subscription catalog.
func DefaultTiers() Tiers {
	return Tiers{
		UnlimitedPlan: PlanPro,
		Rules: []Rule{
			{Feature: FeatureThreeLimit, Limit: 3},
			{Feature: FeatureTenLimit, Limit: 10},
		},
	}
}

// LoadTiers reads a YAML rule file.
func LoadTiers(path string) (Tiers, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tiers{}, fmt.Errorf("read quota rules: %w", err)
	}

	var tiers Tiers
	if err := yaml.Unmarshal(raw, &tiers); err != nil {
		return Tiers{}, fmt.Errorf("parse quota rules: %w", err)
	}
	if err := tiers.Validate(); err != nil {
		return Tiers{}, err
	}
	return tiers, nil
}

// Validate rejects rules without a feature or with a negative limit.
func (t Tiers) Validate() error {
	for i, rule := range t.Rules {
		if strings.TrimSpace(rule.Feature) == "" {
			return fmt.Errorf("quota rule %d: feature is required", i)
		}
		if rule.Limit < 0 {
			return fmt.Errorf("quota rule %d (%s): limit must be non-negative", i, rule.Feature)
		}
	}
	return nil
}

// Resolve returns the quota for c and the tier that produced it.
func (t Tiers) Resolve(c caller.Caller) (limit int, unlimited bool, tier string) {
	if c.HasPlan(t.UnlimitedPlan) {
		return 0, true, TierUnlimited
	}
	for _, rule := range t.Rules {
		if c.HasFeature(rule.Feature) {
			return rule.Limit, false, rule.Feature
		}
	}
	return 0, false, TierNone
}
