// Package store keeps drafts on the local machine so that unfinished
// inspections survive between runs.
//
// Drafts are stored whole, as the CBOR encoding produced by
// [draft.Draft.Encode], next to a few columns used for listing.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tvinspection/tvinspect/pkg/draft"
)

// Summary describes a stored draft without decoding it.
type Summary struct {
	ID          uuid.UUID `json:"id"`
	RemoteID    string    `json:"remote_id,omitempty"`
	Broadcaster string    `json:"broadcaster"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Store interface {
	Save(ctx context.Context, d *draft.Draft) error
	// Get returns constants.ErrDraftNotFound for unknown ids.
	Get(ctx context.Context, id uuid.UUID, opts ...draft.Option) (*draft.Draft, error)
	// List returns the most recently updated drafts first.
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}
