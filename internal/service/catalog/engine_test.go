package catalog

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingReader struct {
	*companion.MemoryStore
	listCalls int
	failWith  error
}

func (r *countingReader) ListCompanions(ctx context.Context, q companion.ListQuery) ([]companion.Companion, error) {
	r.listCalls++
	if r.failWith != nil {
		return nil, r.failWith
	}
	return r.MemoryStore.ListCompanions(ctx, q)
}

func newEngine(t *testing.T) (*Engine, *countingReader) {
	t.Helper()
	reader := &countingReader{MemoryStore: companion.NewSeededMemoryStore("system")}
	return NewEngine(reader), reader
}

func TestBuildQuery(t *testing.T) {
	q, err := BuildQuery(Filter{Subject: " maths ", Topic: "wizard"}, Page{Limit: 5, Number: 3})
	require.NoError(t, err)

	assert.Equal(t, 10, q.Offset)
	assert.Equal(t, 5, q.Limit)
	require.Len(t, q.Where, 2)
	assert.Equal(t, companion.Match{Columns: []string{companion.ColumnSubject}, Pattern: "maths"}, q.Where[0])
	assert.Equal(t, companion.Match{Columns: []string{companion.ColumnTopic, companion.ColumnName}, Pattern: "wizard"}, q.Where[1])
}

func TestBuildQueryIgnoresBlankFilters(t *testing.T) {
	q, err := BuildQuery(Filter{Subject: "  ", Topic: ""}, Page{Limit: DefaultLimit, Number: DefaultPage})
	require.NoError(t, err)
	assert.Empty(t, q.Where)
	assert.Equal(t, 0, q.Offset)
}

func TestBuildQueryRejectsInvalidPage(t *testing.T) {
	pages := []Page{
		{Limit: -1, Number: 1},
		{Limit: 10, Number: 0},
		{Limit: 10, Number: -2},
		{Limit: MaxLimit + 1, Number: 1},
		{Limit: math.MaxInt/2 + 1, Number: 3},
		{Limit: MaxLimit, Number: math.MaxInt},
		{Limit: 7, Number: math.MaxInt/7 + 1},
	}
	for _, page := range pages {
		_, err := BuildQuery(Filter{}, page)
		assert.ErrorIs(t, err, ErrInvalidPage, "page %+v", page)
	}
}

func TestBuildQueryLargestPageFits(t *testing.T) {
	number := math.MaxInt / MaxLimit
	q, err := BuildQuery(Filter{}, Page{Limit: MaxLimit, Number: number})
	require.NoError(t, err)
	assert.Greater(t, q.Offset, 0)
	assert.Equal(t, (number-1)*MaxLimit, q.Offset)
}

func TestListOversizedLimitDoesNotRepeatFirstPage(t *testing.T) {
	engine, _ := newEngine(t)

	_, err := engine.List(context.Background(), Filter{}, Page{Limit: math.MaxInt/2 + 1, Number: 3})
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestListFiltersBySubject(t *testing.T) {
	engine, _ := newEngine(t)

	got, err := engine.List(context.Background(), Filter{Subject: "MATH"}, Page{Limit: 10, Number: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "maths", got[0].Subject)
}

func TestListTopicMatchesTopicOrName(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	byTopic, err := engine.List(ctx, Filter{Topic: "supply"}, Page{Limit: 10, Number: 1})
	require.NoError(t, err)
	require.Len(t, byTopic, 1)
	assert.Equal(t, "The Market Maestro", byTopic[0].Name)

	byName, err := engine.List(ctx, Filter{Topic: "codey"}, Page{Limit: 10, Number: 1})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "coding", byName[0].Subject)
}

func TestListCombinesFiltersWithAnd(t *testing.T) {
	engine, _ := newEngine(t)

	got, err := engine.List(context.Background(), Filter{Subject: "science", Topic: "supply"}, Page{Limit: 10, Number: 1})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListPagesAreDisjointWindows(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for number := 1; number <= 3; number++ {
		page, err := engine.List(ctx, Filter{}, Page{Limit: 2, Number: number})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page), 2)
		for _, c := range page {
			assert.False(t, seen[c.ID], "companion %s repeated on page %d", c.ID, number)
			seen[c.ID] = true
		}
	}
	assert.Len(t, seen, len(companion.Seed()))

	past, err := engine.List(ctx, Filter{}, Page{Limit: 2, Number: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestListZeroLimitSkipsStore(t *testing.T) {
	engine, reader := newEngine(t)

	got, err := engine.List(context.Background(), Filter{Subject: "science"}, Page{Limit: 0, Number: 1})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, reader.listCalls)
}

func TestListWrapsStoreFailure(t *testing.T) {
	engine, reader := newEngine(t)
	reader.failWith = errors.New("connection reset")

	_, err := engine.List(context.Background(), Filter{}, Page{Limit: 10, Number: 1})
	var storeErr *companion.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "list companions", storeErr.Op)
}

func TestGetCompanion(t *testing.T) {
	engine, reader := newEngine(t)
	ctx := context.Background()

	all, err := reader.MemoryStore.ListCompanions(ctx, companion.ListQuery{Limit: -1})
	require.NoError(t, err)

	got, err := engine.Get(ctx, all[1].ID)
	require.NoError(t, err)
	assert.Equal(t, all[1], got)

	_, err = engine.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, companion.ErrNotFound)

	_, err = engine.Get(ctx, "  ")
	assert.ErrorIs(t, err, companion.ErrNotFound)
}

func TestOwnedBy(t *testing.T) {
	engine, reader := newEngine(t)
	ctx := context.Background()

	_, err := reader.InsertCompanion(ctx, "user-1", companion.Seed()[0])
	require.NoError(t, err)

	owned, err := engine.OwnedBy(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "user-1", owned[0].Author)

	none, err := engine.OwnedBy(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
