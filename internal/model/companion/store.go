package companion

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Catalog is the record store contract over the companions collection.
type Catalog interface {
	ListCompanions(ctx context.Context, q ListQuery) ([]Companion, error)
	GetCompanion(ctx context.Context, id string) (Companion, error)
	CompanionsByID(ctx context.Context, ids []string) ([]Companion, error)
	CompanionsByAuthor(ctx context.Context, author string) ([]Companion, error)
	CountByAuthor(ctx context.Context, author string) (int, error)
	InsertCompanion(ctx context.Context, author string, fields Fields) (Companion, error)
}

// History is the record store contract over the session_history collection.
type History interface {
	RecentHistory(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error)
	InsertHistory(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)
}

// Store exposes both collections.
type Store interface {
	Catalog
	History
}

// MemoryStore implements Store with in-memory slices. Rows are returned in
// insertion order, which is its default ordering.
type MemoryStore struct {
	mu         sync.RWMutex
	companions []Companion
	history    []HistoryEntry
	now        func() time.Time
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied companions.
func NewMemoryStore(items []Companion) *MemoryStore {
	return &MemoryStore{
		companions: append([]Companion(nil), items...),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NewSeededMemoryStore returns a MemoryStore holding Seed authored by author.
func NewSeededMemoryStore(author string) *MemoryStore {
	s := NewMemoryStore(nil)
	for _, fields := range Seed() {
		_, _ = s.InsertCompanion(context.Background(), author, fields)
	}
	return s
}

// ListCompanions returns the window of companions matching q.
func (s *MemoryStore) ListCompanions(ctx context.Context, q ListQuery) ([]Companion, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapStore("list companions", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Companion, 0)
	skipped := 0
	for _, item := range s.companions {
		if q.Limit >= 0 && len(result) >= q.Limit {
			break
		}
		if !q.Matches(item) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		result = append(result, item)
	}
	return result, nil
}

// GetCompanion looks up a companion by identifier.
func (s *MemoryStore) GetCompanion(ctx context.Context, id string) (Companion, error) {
	if err := ctx.Err(); err != nil {
		return Companion{}, WrapStore("get companion", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.companions {
		if item.ID == id {
			return item, nil
		}
	}
	return Companion{}, ErrNotFound
}

// CompanionsByID returns the companions whose id is in ids, in store order.
func (s *MemoryStore) CompanionsByID(ctx context.Context, ids []string) ([]Companion, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapStore("companions by id", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Companion, 0, len(ids))
	for _, item := range s.companions {
		if slices.Contains(ids, item.ID) {
			result = append(result, item)
		}
	}
	return result, nil
}

// CompanionsByAuthor returns the companions owned by author.
func (s *MemoryStore) CompanionsByAuthor(ctx context.Context, author string) ([]Companion, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapStore("companions by author", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Companion, 0)
	for _, item := range s.companions {
		if item.Author == author {
			result = append(result, item)
		}
	}
	return result, nil
}

// CountByAuthor counts the companions owned by author.
func (s *MemoryStore) CountByAuthor(ctx context.Context, author string) (int, error) {
	owned, err := s.CompanionsByAuthor(ctx, author)
	if err != nil {
		return 0, err
	}
	return len(owned), nil
}

// InsertCompanion stores a new companion attributed to author.
func (s *MemoryStore) InsertCompanion(ctx context.Context, author string, fields Fields) (Companion, error) {
	if err := ctx.Err(); err != nil {
		return Companion{}, WrapStore("insert companion", err)
	}

	item := Companion{
		ID:        uuid.NewString(),
		Name:      fields.Name,
		Subject:   fields.Subject,
		Topic:     fields.Topic,
		Voice:     fields.Voice,
		Style:     fields.Style,
		Duration:  fields.Duration,
		Color:     fields.Color,
		Author:    author,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.companions = append(s.companions, item)
	s.mu.Unlock()
	return item, nil
}

// RecentHistory returns up to q.Limit entries, most recent first.
func (s *MemoryStore) RecentHistory(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapStore("recent history", err)
	}

	s.mu.RLock()
	selected := make([]HistoryEntry, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		entry := s.history[i]
		if q.UserID != "" && entry.UserID != q.UserID {
			continue
		}
		selected = append(selected, entry)
	}
	s.mu.RUnlock()

	// Equal timestamps keep newest-inserted first.
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].CreatedAt.After(selected[j].CreatedAt)
	})

	if q.Limit >= 0 && len(selected) > q.Limit {
		selected = selected[:q.Limit]
	}
	return selected, nil
}

// InsertHistory appends a history entry. A zero CreatedAt is stamped with the
// current time.
func (s *MemoryStore) InsertHistory(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return HistoryEntry{}, WrapStore("insert history", err)
	}

	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	s.mu.Lock()
	s.history = append(s.history, entry)
	s.mu.Unlock()
	return entry, nil
}
