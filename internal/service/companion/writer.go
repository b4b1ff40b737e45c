package companion

import (
	"context"
	"errors"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

// ErrAuthorRequired is returned when Create has no caller identity.
var ErrAuthorRequired = errors.New("author is required")

// Inserter persists new companions.
type Inserter interface {
	InsertCompanion(ctx context.Context, author string, fields companion.Fields) (companion.Companion, error)
}

// Observer is notified about each created companion.
type Observer interface {
	ObserveCompanionCreated(subject string)
}

// Writer inserts companions attributed to their caller.
//
// Writer does not consult the quota enforcer; callers run quota.Enforcer
// before Create.
type Writer struct {
	store    Inserter
	observer Observer
}

// NewWriter returns a Writer backed by store. observer may be nil.
func NewWriter(store Inserter, observer Observer) *Writer {
	return &Writer{store: store, observer: observer}
}

// Create validates fields and inserts a companion authored by c.
func (w *Writer) Create(ctx context.Context, fields companion.Fields, c caller.Caller) (companion.Companion, error) {
	if c.Anonymous() {
		return companion.Companion{}, ErrAuthorRequired
	}

	fields = fields.Normalize()
	if err := fields.Validate(); err != nil {
		return companion.Companion{}, err
	}

	created, err := w.store.InsertCompanion(ctx, c.UserID, fields)
	if err != nil {
		return companion.Companion{}, &companion.CreationError{Err: err}
	}
	if created.ID == "" {
		return companion.Companion{}, &companion.CreationError{Err: companion.ErrNoRecord}
	}

	if w.observer != nil {
		w.observer.ObserveCompanionCreated(created.Subject)
	}
	return created, nil
}
