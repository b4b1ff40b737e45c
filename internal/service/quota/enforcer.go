package quota

import (
	"context"
	"errors"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

// ErrAnonymous is returned when a quota check has no caller identity.
var ErrAnonymous = errors.New("caller identity is required")

// Counter counts the companions owned by an author.
type Counter interface {
	CountByAuthor(ctx context.Context, author string) (int, error)
}

// Observer receives every quota decision.
type Observer interface {
	ObserveQuotaDecision(tier string, allowed bool)
}

// Decision describes the outcome of a quota check.
type Decision struct {
	Allowed   bool   `json:"canCreate"`
	Tier      string `json:"tier"`
	Limit     int    `json:"limit"`
	Unlimited bool   `json:"unlimited"`
	Owned     int    `json:"owned"`
}

// Enforcer decides whether a caller may create another companion.
//
// The check and the subsequent insert are not atomic: two concurrent creates
// by the same caller can both pass CanCreate.
type Enforcer struct {
	counter  Counter
	tiers    Tiers
	observer Observer
}

// NewEnforcer returns an Enforcer using tiers. observer may be nil.
func NewEnforcer(counter Counter, tiers Tiers, observer Observer) *Enforcer {
	return &Enforcer{counter: counter, tiers: tiers, observer: observer}
}

// CanCreate reports whether c is below its companion quota.
func (e *Enforcer) CanCreate(ctx context.Context, c caller.Caller) (bool, error) {
	decision, err := e.Decide(ctx, c)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// Decide resolves the caller's tier and compares the owned count against it.
// A store failure is returned as an error, never as an approval.
func (e *Enforcer) Decide(ctx context.Context, c caller.Caller) (Decision, error) {
	if c.Anonymous() {
		return Decision{}, ErrAnonymous
	}

	limit, unlimited, tier := e.tiers.Resolve(c)
	decision := Decision{Tier: tier, Limit: limit, Unlimited: unlimited}

	switch {
	case unlimited:
		decision.Allowed = true
	case limit == 0:
		decision.Allowed = false
	default:
		owned, err := e.counter.CountByAuthor(ctx, c.UserID)
		if err != nil {
			return Decision{}, companion.WrapStore("count companions", err)
		}
		decision.Owned = owned
		decision.Allowed = owned < limit
	}

	if e.observer != nil {
		e.observer.ObserveQuotaDecision(tier, decision.Allowed)
	}
	return decision, nil
}
