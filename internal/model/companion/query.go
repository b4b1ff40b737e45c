package companion

import "strings"

// Match is a case-insensitive substring predicate. It holds when any of
// Columns contains Pattern.
type Match struct {
	Columns []string
	Pattern string
}

// Holds evaluates the predicate against c.
func (m Match) Holds(c Companion) bool {
	needle := strings.ToLower(m.Pattern)
	for _, column := range m.Columns {
		value, ok := c.Column(column)
		if ok && strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

// ListQuery selects a window of companions satisfying every predicate in Where.
type ListQuery struct {
	Where  []Match
	Offset int
	Limit  int
}

// Matches reports whether c satisfies all predicates of the query.
func (q ListQuery) Matches(c Companion) bool {
	for _, m := range q.Where {
		if !m.Holds(c) {
			return false
		}
	}
	return true
}

// HistoryQuery selects the most recent history entries. An empty UserID
// selects across all users.
type HistoryQuery struct {
	UserID string
	Limit  int
}
