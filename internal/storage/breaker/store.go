// Package breaker guards a companion store with a circuit breaker.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

// Config holds circuit breaker settings.
type Config struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Store routes every call of the wrapped store through one breaker. Lookups
// that end in companion.ErrNotFound or a cancelled context do not count as
// failures.
type Store struct {
	next companion.Store
	cb   *gobreaker.CircuitBreaker
}

// Wrap returns next guarded by a breaker built from cfg.
func Wrap(next companion.Store, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, companion.ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})
	return &Store{next: next, cb: cb}
}

// State reports the current breaker state.
func (s *Store) State() gobreaker.State {
	return s.cb.State()
}

func run[T any](s *Store, op string, fn func() (T, error)) (T, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, companion.WrapStore(op, err)
	}
	return out.(T), nil
}

// ListCompanions lists companions through the breaker.
func (s *Store) ListCompanions(ctx context.Context, q companion.ListQuery) ([]companion.Companion, error) {
	return run(s, "list companions", func() ([]companion.Companion, error) {
		return s.next.ListCompanions(ctx, q)
	})
}

// GetCompanion looks up one companion through the breaker. ErrNotFound does not count as a failure.
func (s *Store) GetCompanion(ctx context.Context, id string) (companion.Companion, error) {
	return run(s, "get companion", func() (companion.Companion, error) {
		return s.next.GetCompanion(ctx, id)
	})
}

// CompanionsByID batch-loads companions through the breaker.
func (s *Store) CompanionsByID(ctx context.Context, ids []string) ([]companion.Companion, error) {
	return run(s, "companions by id", func() ([]companion.Companion, error) {
		return s.next.CompanionsByID(ctx, ids)
	})
}

// CompanionsByAuthor lists an author's companions through the breaker.
func (s *Store) CompanionsByAuthor(ctx context.Context, author string) ([]companion.Companion, error) {
	return run(s, "companions by author", func() ([]companion.Companion, error) {
		return s.next.CompanionsByAuthor(ctx, author)
	})
}

// CountByAuthor counts an author's companions through the breaker.
func (s *Store) CountByAuthor(ctx context.Context, author string) (int, error) {
	return run(s, "count companions", func() (int, error) {
		return s.next.CountByAuthor(ctx, author)
	})
}

// InsertCompanion inserts a companion through the breaker.
func (s *Store) InsertCompanion(ctx context.Context, author string, fields companion.Fields) (companion.Companion, error) {
	return run(s, "insert companion", func() (companion.Companion, error) {
		return s.next.InsertCompanion(ctx, author, fields)
	})
}

// RecentHistory reads session history through the breaker.
func (s *Store) RecentHistory(ctx context.Context, q companion.HistoryQuery) ([]companion.HistoryEntry, error) {
	return run(s, "recent history", func() ([]companion.HistoryEntry, error) {
		return s.next.RecentHistory(ctx, q)
	})
}

// InsertHistory appends a history entry through the breaker.
func (s *Store) InsertHistory(ctx context.Context, entry companion.HistoryEntry) (companion.HistoryEntry, error) {
	return run(s, "insert history", func() (companion.HistoryEntry, error) {
		return s.next.InsertHistory(ctx, entry)
	})
}
