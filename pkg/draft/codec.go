package draft

import (
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

type snapshot struct {
	ID        string         `cbor:"id"`
	RemoteID  string         `cbor:"remote_id,omitempty"`
	Record    map[string]any `cbor:"record"`
	Attempts  int            `cbor:"attempts"`
	Dirty     bool           `cbor:"dirty"`
	UpdatedAt time.Time      `cbor:"updated_at"`
}

func getCborEncoder() cbor.EncMode {
	em, err := cbor.EncOptions{
		Time: cbor.TimeRFC3339Nano,
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func getCborDecoder() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// Encode serialises the draft as CBOR for local storage.
func (d *Draft) Encode() ([]byte, error) {
	d.mu.Lock()
	snap := snapshot{
		ID:        d.id.String(),
		RemoteID:  d.remoteID,
		Record:    schema.CloneRecord(d.rec),
		Attempts:  d.attempts,
		Dirty:     d.dirty,
		UpdatedAt: d.updatedAt,
	}
	d.mu.Unlock()
	return getCborEncoder().Marshal(snap)
}

// Decode restores a draft written by Encode.
func Decode(data []byte, opts ...Option) (*Draft, error) {
	var snap snapshot
	if err := getCborDecoder().Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode draft id: %w", err)
	}
	d := newDraft(schema.MergeWithDefaults(snap.Record), append([]Option{WithID(id)}, opts...))
	d.remoteID = snap.RemoteID
	d.attempts = snap.Attempts
	d.dirty = snap.Dirty
	if !snap.UpdatedAt.IsZero() {
		d.updatedAt = snap.UpdatedAt
	}
	return d, nil
}
