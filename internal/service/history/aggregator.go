package history

import (
	"context"
	"errors"
	"strings"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

var (
	// ErrInvalidLimit is returned when a non-positive limit is requested.
	ErrInvalidLimit = errors.New("limit must be positive")
	// ErrCompanionRequired is returned when a launch names no companion.
	ErrCompanionRequired = errors.New("companion id is required")
	// ErrUserRequired is returned when a per-user query or launch has no user.
	ErrUserRequired = errors.New("user id is required")
)

// DefaultLimit is the number of recent sessions returned when unspecified.
const DefaultLimit = 10

// Store is the part of the record store the aggregator needs.
type Store interface {
	RecentHistory(ctx context.Context, q companion.HistoryQuery) ([]companion.HistoryEntry, error)
	InsertHistory(ctx context.Context, entry companion.HistoryEntry) (companion.HistoryEntry, error)
	CompanionsByID(ctx context.Context, ids []string) ([]companion.Companion, error)
}

// Aggregator joins the session history log against the companion catalog.
type Aggregator struct {
	store Store
}

// NewAggregator returns an Aggregator backed by store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// RecentForUser returns the companions of userID's most recent sessions,
// newest first. Repeated sessions yield repeated companions.
func (a *Aggregator) RecentForUser(ctx context.Context, userID string, limit int) ([]companion.Companion, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserRequired
	}
	return a.recent(ctx, companion.HistoryQuery{UserID: userID, Limit: limit})
}

// RecentGlobal returns the companions of the most recent sessions of any user.
func (a *Aggregator) RecentGlobal(ctx context.Context, limit int) ([]companion.Companion, error) {
	return a.recent(ctx, companion.HistoryQuery{Limit: limit})
}

func (a *Aggregator) recent(ctx context.Context, q companion.HistoryQuery) ([]companion.Companion, error) {
	if q.Limit <= 0 {
		return nil, ErrInvalidLimit
	}

	entries, err := a.store.RecentHistory(ctx, q)
	if err != nil {
		return nil, companion.WrapStore("recent history", err)
	}
	if len(entries) == 0 {
		return []companion.Companion{}, nil
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.CompanionID
	}

	records, err := a.store.CompanionsByID(ctx, distinct(ids))
	if err != nil {
		return nil, companion.WrapStore("companions by id", err)
	}

	return project(ids, records), nil
}

// project emits the record for each id in order, skipping ids with no record.
func project(ids []string, records []companion.Companion) []companion.Companion {
	index := make(map[string]companion.Companion, len(records))
	for _, record := range records {
		index[record.ID] = record
	}

	result := make([]companion.Companion, 0, len(ids))
	for _, id := range ids {
		if record, ok := index[id]; ok {
			result = append(result, record)
		}
	}
	return result
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// RecordLaunch appends a history entry for c launching companionID.
func (a *Aggregator) RecordLaunch(ctx context.Context, c caller.Caller, companionID string) (companion.HistoryEntry, error) {
	companionID = strings.TrimSpace(companionID)
	if companionID == "" {
		return companion.HistoryEntry{}, ErrCompanionRequired
	}
	if c.Anonymous() {
		return companion.HistoryEntry{}, ErrUserRequired
	}

	entry, err := a.store.InsertHistory(ctx, companion.HistoryEntry{
		CompanionID: companionID,
		UserID:      c.UserID,
	})
	if err != nil {
		return companion.HistoryEntry{}, companion.WrapStore("insert history", err)
	}
	return entry, nil
}
