package catalog

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

// ErrInvalidPage is returned for a limit outside [0, MaxLimit], a page number
// below one, or a page whose offset does not fit in an int.
var ErrInvalidPage = errors.New("limit must be between 0 and 100 and page must be at least 1")

// Default paging used when a request omits it.
const (
	DefaultLimit = 10
	DefaultPage  = 1
	MaxLimit     = 100
)

// Filter narrows a listing. Empty fields are ignored.
//
// Subject matches the subject column; Topic matches the topic or the name
// column. Both are case-insensitive substring matches and are combined with AND.
type Filter struct {
	Subject string
	Topic   string
}

// Page selects a window of the listing. Number is 1-based.
type Page struct {
	Limit  int
	Number int
}

// Reader is the part of the record store the engine reads from.
type Reader interface {
	ListCompanions(ctx context.Context, q companion.ListQuery) ([]companion.Companion, error)
	GetCompanion(ctx context.Context, id string) (companion.Companion, error)
	CompanionsByAuthor(ctx context.Context, author string) ([]companion.Companion, error)
}

// Engine composes and runs listing queries over the companion catalog.
type Engine struct {
	store Reader
}

// NewEngine returns an Engine backed by store.
func NewEngine(store Reader) *Engine {
	return &Engine{store: store}
}

// BuildQuery translates a filter and page into a store query.
func BuildQuery(filter Filter, page Page) (companion.ListQuery, error) {
	if page.Limit < 0 || page.Limit > MaxLimit || page.Number < 1 {
		return companion.ListQuery{}, ErrInvalidPage
	}
	// Offset plus the window must stay below MaxInt for every store.
	if page.Limit > 0 && page.Number > math.MaxInt/page.Limit {
		return companion.ListQuery{}, ErrInvalidPage
	}

	q := companion.ListQuery{
		Offset: (page.Number - 1) * page.Limit,
		Limit:  page.Limit,
	}
	if subject := strings.TrimSpace(filter.Subject); subject != "" {
		q.Where = append(q.Where, companion.Match{
			Columns: []string{companion.ColumnSubject},
			Pattern: subject,
		})
	}
	if topic := strings.TrimSpace(filter.Topic); topic != "" {
		q.Where = append(q.Where, companion.Match{
			Columns: []string{companion.ColumnTopic, companion.ColumnName},
			Pattern: topic,
		})
	}
	return q, nil
}

// List returns one page of companions matching filter. Ordering is whatever
// the store returns by default and is not guaranteed stable across calls.
func (e *Engine) List(ctx context.Context, filter Filter, page Page) ([]companion.Companion, error) {
	q, err := BuildQuery(filter, page)
	if err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		return []companion.Companion{}, nil
	}

	items, err := e.store.ListCompanions(ctx, q)
	if err != nil {
		return nil, companion.WrapStore("list companions", err)
	}
	if items == nil {
		items = []companion.Companion{}
	}
	return items, nil
}

// Get returns a single companion or companion.ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (companion.Companion, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return companion.Companion{}, companion.ErrNotFound
	}

	item, err := e.store.GetCompanion(ctx, id)
	if err != nil {
		return companion.Companion{}, companion.WrapStore("get companion", err)
	}
	return item, nil
}

// OwnedBy lists the companions authored by userID.
func (e *Engine) OwnedBy(ctx context.Context, userID string) ([]companion.Companion, error) {
	items, err := e.store.CompanionsByAuthor(ctx, userID)
	if err != nil {
		return nil, companion.WrapStore("companions by author", err)
	}
	if items == nil {
		items = []companion.Companion{}
	}
	return items, nil
}
