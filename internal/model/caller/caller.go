package caller

import "slices"

// Caller is the identity and entitlement set resolved for one request.
type Caller struct {
	UserID   string   `json:"userId"`
	Plan     string   `json:"plan,omitempty"`
	Features []string `json:"features,omitempty"`
}

// Anonymous reports whether no identity was resolved.
func (c Caller) Anonymous() bool {
	return c.UserID == ""
}

// HasPlan reports whether the caller is subscribed to plan.
func (c Caller) HasPlan(plan string) bool {
	return plan != "" && c.Plan == plan
}

// HasFeature reports whether the caller holds the named feature flag.
func (c Caller) HasFeature(feature string) bool {
	return feature != "" && slices.Contains(c.Features, feature)
}
