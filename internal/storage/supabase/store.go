// Package supabase provides a companion record store over Supabase PostgREST.
package supabase

import (
	"context"
	"fmt"
	"strings"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

// Table names of the two collections.
const (
	CompanionsTable = "companions"
	HistoryTable    = "session_history"
)

// Store executes companion queries through a Supabase client.
//
// postgrest-go does not accept a context, so cancellation is only observed
// before a request is sent.
type Store struct {
	client *supabase.Client
}

// New returns a Store using client.
func New(client *supabase.Client) *Store {
	return &Store{client: client}
}

// Open creates a Supabase client for url and key and wraps it in a Store.
func Open(url, key string) (*Store, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return New(client), nil
}

type companionRow struct {
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	Topic    string `json:"topic"`
	Voice    string `json:"voice"`
	Style    string `json:"style"`
	Duration int    `json:"duration"`
	Color    string `json:"color,omitempty"`
	Author   string `json:"author"`
}

type historyRow struct {
	CompanionID string     `json:"companion_id"`
	UserID      string     `json:"user_id"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a literal substring pattern for ilike.
func likePattern(pattern string) string {
	return "%" + likeEscaper.Replace(pattern) + "%"
}

// quote wraps a value for use inside a PostgREST logical expression.
func quote(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
	return `"` + escaped + `"`
}

// anyIlike renders "a.ilike.x,b.ilike.x" for a multi-column predicate.
func anyIlike(match companion.Match) string {
	parts := make([]string, 0, len(match.Columns))
	for _, column := range match.Columns {
		parts = append(parts, fmt.Sprintf("%s.ilike.%s", column, quote(likePattern(match.Pattern))))
	}
	return strings.Join(parts, ",")
}

// applyMatches adds the predicates of q to the request. Single-column
// predicates become ilike filters; one multi-column predicate becomes an or
// filter, several are nested under and.
func applyMatches(fb *postgrest.FilterBuilder, matches []companion.Match) *postgrest.FilterBuilder {
	var disjunctions []string
	for _, match := range matches {
		switch len(match.Columns) {
		case 0:
			continue
		case 1:
			fb = fb.Ilike(match.Columns[0], likePattern(match.Pattern))
		default:
			disjunctions = append(disjunctions, anyIlike(match))
		}
	}

	switch len(disjunctions) {
	case 0:
	case 1:
		fb = fb.Or(disjunctions[0], "")
	default:
		nested := make([]string, len(disjunctions))
		for i, d := range disjunctions {
			nested[i] = "or(" + d + ")"
		}
		fb = fb.And(strings.Join(nested, ","), "")
	}
	return fb
}

// ListCompanions returns the window of companions matching q.
func (s *Store) ListCompanions(ctx context.Context, q companion.ListQuery) ([]companion.Companion, error) {
	if err := ctx.Err(); err != nil {
		return nil, companion.WrapStore("list companions", err)
	}

	fb := s.client.From(CompanionsTable).Select("*", "", false)
	fb = applyMatches(fb, q.Where)
	if q.Limit >= 0 {
		fb = fb.Range(q.Offset, q.Offset+q.Limit-1, "")
	}

	items := make([]companion.Companion, 0)
	if _, err := fb.ExecuteTo(&items); err != nil {
		return nil, companion.WrapStore("list companions", err)
	}
	return items, nil
}

// GetCompanion returns one companion by id.
func (s *Store) GetCompanion(ctx context.Context, id string) (companion.Companion, error) {
	if err := ctx.Err(); err != nil {
		return companion.Companion{}, companion.WrapStore("get companion", err)
	}

	var items []companion.Companion
	if _, err := s.client.From(CompanionsTable).Select("*", "", false).Eq("id", id).ExecuteTo(&items); err != nil {
		return companion.Companion{}, companion.WrapStore("get companion", err)
	}
	if len(items) == 0 {
		return companion.Companion{}, companion.ErrNotFound
	}
	return items[0], nil
}

// CompanionsByID returns the companions whose id is in ids.
func (s *Store) CompanionsByID(ctx context.Context, ids []string) ([]companion.Companion, error) {
	if err := ctx.Err(); err != nil {
		return nil, companion.WrapStore("companions by id", err)
	}
	if len(ids) == 0 {
		return []companion.Companion{}, nil
	}

	items := make([]companion.Companion, 0, len(ids))
	if _, err := s.client.From(CompanionsTable).Select("*", "", false).In("id", ids).ExecuteTo(&items); err != nil {
		return nil, companion.WrapStore("companions by id", err)
	}
	return items, nil
}

// CompanionsByAuthor returns the companions owned by author.
func (s *Store) CompanionsByAuthor(ctx context.Context, author string) ([]companion.Companion, error) {
	if err := ctx.Err(); err != nil {
		return nil, companion.WrapStore("companions by author", err)
	}

	items := make([]companion.Companion, 0)
	if _, err := s.client.From(CompanionsTable).Select("*", "", false).Eq("author", author).ExecuteTo(&items); err != nil {
		return nil, companion.WrapStore("companions by author", err)
	}
	return items, nil
}

// CountByAuthor counts the companions owned by author using an exact count.
func (s *Store) CountByAuthor(ctx context.Context, author string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, companion.WrapStore("count companions", err)
	}

	_, count, err := s.client.From(CompanionsTable).Select("id", "exact", true).Eq("author", author).Execute()
	if err != nil {
		return 0, companion.WrapStore("count companions", err)
	}
	return int(count), nil
}

// InsertCompanion inserts a companion and returns the row echoed by PostgREST.
// An empty echo yields a zero Companion.
func (s *Store) InsertCompanion(ctx context.Context, author string, fields companion.Fields) (companion.Companion, error) {
	if err := ctx.Err(); err != nil {
		return companion.Companion{}, companion.WrapStore("insert companion", err)
	}

	row := companionRow{
		Name:     fields.Name,
		Subject:  fields.Subject,
		Topic:    fields.Topic,
		Voice:    fields.Voice,
		Style:    fields.Style,
		Duration: fields.Duration,
		Color:    fields.Color,
		Author:   author,
	}

	var inserted []companion.Companion
	if _, err := s.client.From(CompanionsTable).Insert(row, false, "", "representation", "").ExecuteTo(&inserted); err != nil {
		return companion.Companion{}, companion.WrapStore("insert companion", err)
	}
	if len(inserted) == 0 {
		return companion.Companion{}, nil
	}
	return inserted[0], nil
}

// RecentHistory returns up to q.Limit entries ordered by created_at descending.
func (s *Store) RecentHistory(ctx context.Context, q companion.HistoryQuery) ([]companion.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, companion.WrapStore("recent history", err)
	}

	fb := s.client.From(HistoryTable).Select("id,companion_id,user_id,created_at", "", false)
	if q.UserID != "" {
		fb = fb.Eq("user_id", q.UserID)
	}
	fb = fb.Order("created_at", &postgrest.OrderOpts{Ascending: false}).Limit(q.Limit, "")

	entries := make([]companion.HistoryEntry, 0)
	if _, err := fb.ExecuteTo(&entries); err != nil {
		return nil, companion.WrapStore("recent history", err)
	}
	return entries, nil
}

// InsertHistory appends a session history entry.
func (s *Store) InsertHistory(ctx context.Context, entry companion.HistoryEntry) (companion.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return companion.HistoryEntry{}, companion.WrapStore("insert history", err)
	}

	row := historyRow{CompanionID: entry.CompanionID, UserID: entry.UserID}
	if !entry.CreatedAt.IsZero() {
		createdAt := entry.CreatedAt.UTC()
		row.CreatedAt = &createdAt
	}

	var inserted []companion.HistoryEntry
	if _, err := s.client.From(HistoryTable).Insert(row, false, "", "representation", "").ExecuteTo(&inserted); err != nil {
		return companion.HistoryEntry{}, companion.WrapStore("insert history", err)
	}
	if len(inserted) == 0 {
		return companion.HistoryEntry{}, companion.WrapStore("insert history", companion.ErrNoRecord)
	}
	return inserted[0], nil
}
