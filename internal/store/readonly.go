package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tvinspection/tvinspect/pkg/draft"
)

var ErrReadOnly = errors.New("drafts store is read-only")

// ReadOnlyStore wraps a Store and rejects writes while isReadOnly returns
// true. Reads pass through.
type ReadOnlyStore struct {
	Store
	isReadOnly func() bool
}

// NewReadOnlyStore creates a new read-only wrapper for a store
func NewReadOnlyStore(store Store, isReadOnly func() bool) Store {
	return &ReadOnlyStore{
		Store:      store,
		isReadOnly: isReadOnly,
	}
}

// Unwrap returns the underlying store
func (r *ReadOnlyStore) Unwrap() Store {
	return r.Store
}

func (r *ReadOnlyStore) Save(ctx context.Context, d *draft.Draft) error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return r.Store.Save(ctx, d)
}

func (r *ReadOnlyStore) Delete(ctx context.Context, id uuid.UUID) error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return r.Store.Delete(ctx, id)
}
