// Package sqlite provides a SQLite-backed companion record store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/storage/sqlite/migrations"
)

// Store persists companions and session history in SQLite. Its default
// ordering is insertion order.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const companionColumns = `id, name, subject, topic, voice, style, duration, color, author, created_at`

var filterColumns = map[string]string{
	companion.ColumnName:    "name",
	companion.ColumnSubject: "subject",
	companion.ColumnTopic:   "topic",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompanion(row rowScanner) (companion.Companion, error) {
	var item companion.Companion
	var createdAt int64
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Subject,
		&item.Topic,
		&item.Voice,
		&item.Style,
		&item.Duration,
		&item.Color,
		&item.Author,
		&createdAt,
	)
	if err != nil {
		return companion.Companion{}, err
	}
	item.CreatedAt = fromMillis(createdAt)
	return item, nil
}

func (s *Store) queryCompanions(ctx context.Context, op, query string, args ...any) ([]companion.Companion, error) {
	if err := ctx.Err(); err != nil {
		return nil, companion.WrapStore(op, err)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, companion.WrapStore(op, err)
	}
	defer rows.Close()

	items := make([]companion.Companion, 0)
	for rows.Next() {
		item, err := scanCompanion(rows)
		if err != nil {
			return nil, companion.WrapStore(op, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, companion.WrapStore(op, err)
	}
	return items, nil
}

// likePattern escapes LIKE wildcards so pattern matches literally.
func likePattern(pattern string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.ToLower(pattern)) + "%"
}

// buildWhere renders the predicates of q as a SQL condition.
func buildWhere(q companion.ListQuery) (string, []any, error) {
	if len(q.Where) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(q.Where))
	var args []any
	for _, match := range q.Where {
		alternatives := make([]string, 0, len(match.Columns))
		for _, column := range match.Columns {
			sqlColumn, ok := filterColumns[column]
			if !ok {
				return "", nil, fmt.Errorf("unsupported filter column %q", column)
			}
			alternatives = append(alternatives, fmt.Sprintf(`lower(%s) LIKE ? ESCAPE '\'`, sqlColumn))
			args = append(args, likePattern(match.Pattern))
		}
		clauses = append(clauses, "("+strings.Join(alternatives, " OR ")+")")
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// ListCompanions returns the window of companions matching q.
func (s *Store) ListCompanions(ctx context.Context, q companion.ListQuery) ([]companion.Companion, error) {
	where, args, err := buildWhere(q)
	if err != nil {
		return nil, companion.WrapStore("list companions", err)
	}
	query := `SELECT ` + companionColumns + ` FROM companions` + where + ` ORDER BY rowid LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)
	return s.queryCompanions(ctx, "list companions", query, args...)
}

// GetCompanion returns one companion by id.
func (s *Store) GetCompanion(ctx context.Context, id string) (companion.Companion, error) {
	if err := ctx.Err(); err != nil {
		return companion.Companion{}, companion.WrapStore("get companion", err)
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+companionColumns+` FROM companions WHERE id = ?`, id)
	item, err := scanCompanion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return companion.Companion{}, companion.ErrNotFound
		}
		return companion.Companion{}, companion.WrapStore("get companion", err)
	}
	return item, nil
}

// CompanionsByID returns the companions whose id is in ids.
func (s *Store) CompanionsByID(ctx context.Context, ids []string) ([]companion.Companion, error) {
	if len(ids) == 0 {
		return []companion.Companion{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + companionColumns + ` FROM companions WHERE id IN (` + placeholders + `) ORDER BY rowid`
	return s.queryCompanions(ctx, "companions by id", query, args...)
}

// CompanionsByAuthor returns the companions owned by author.
func (s *Store) CompanionsByAuthor(ctx context.Context, author string) ([]companion.Companion, error) {
	return s.queryCompanions(ctx, "companions by author",
		`SELECT `+companionColumns+` FROM companions WHERE author = ? ORDER BY rowid`, author)
}

// CountByAuthor counts the companions owned by author.
func (s *Store) CountByAuthor(ctx context.Context, author string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, companion.WrapStore("count companions", err)
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM companions WHERE author = ?`, author).Scan(&count); err != nil {
		return 0, companion.WrapStore("count companions", err)
	}
	return count, nil
}

// InsertCompanion stores a new companion and returns the stored row.
func (s *Store) InsertCompanion(ctx context.Context, author string, fields companion.Fields) (companion.Companion, error) {
	if err := ctx.Err(); err != nil {
		return companion.Companion{}, companion.WrapStore("insert companion", err)
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`INSERT INTO companions (
		   id, name, subject, topic, voice, style, duration, color, author, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+companionColumns,
		uuid.NewString(),
		fields.Name,
		fields.Subject,
		fields.Topic,
		fields.Voice,
		fields.Style,
		fields.Duration,
		fields.Color,
		author,
		toMillis(s.now()),
	)
	item, err := scanCompanion(row)
	if err != nil {
		return companion.Companion{}, companion.WrapStore("insert companion", err)
	}
	return item, nil
}

// RecentHistory returns up to q.Limit entries, newest first.
func (s *Store) RecentHistory(ctx context.Context, q companion.HistoryQuery) ([]companion.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, companion.WrapStore("recent history", err)
	}

	query := `SELECT id, companion_id, user_id, created_at FROM session_history`
	var args []any
	if q.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, q.UserID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, companion.WrapStore("recent history", err)
	}
	defer rows.Close()

	entries := make([]companion.HistoryEntry, 0)
	for rows.Next() {
		var entry companion.HistoryEntry
		var createdAt int64
		if err := rows.Scan(&entry.ID, &entry.CompanionID, &entry.UserID, &createdAt); err != nil {
			return nil, companion.WrapStore("recent history", err)
		}
		entry.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, companion.WrapStore("recent history", err)
	}
	return entries, nil
}

// InsertHistory appends a session history entry. A zero CreatedAt is stamped
// with the current time.
func (s *Store) InsertHistory(ctx context.Context, entry companion.HistoryEntry) (companion.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return companion.HistoryEntry{}, companion.WrapStore("insert history", err)
	}
	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.CreatedAt = fromMillis(toMillis(entry.CreatedAt))

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO session_history (id, companion_id, user_id, created_at) VALUES (?, ?, ?, ?)`,
		entry.ID,
		entry.CompanionID,
		entry.UserID,
		toMillis(entry.CreatedAt),
	); err != nil {
		return companion.HistoryEntry{}, companion.WrapStore("insert history", err)
	}
	return entry, nil
}
