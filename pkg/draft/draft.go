// Package draft holds the in-memory state of an inspection record while it
// is being filled in: seeded from defaults or hydrated from a fetched
// record, validated field by field on every change, and turned into a
// submission payload at the end.
//
// A Draft is safe for concurrent use; the live validation socket and its
// auto-save timer share one.
package draft

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tvinspection/tvinspect/pkg/constants"
	"github.com/tvinspection/tvinspect/pkg/normalize"
	"github.com/tvinspection/tvinspect/pkg/schema"
	"github.com/tvinspection/tvinspect/pkg/validate"
)

// metadataKeys are assigned by the backend and never sent back.
var metadataKeys = []string{"id", "created_at", "updated_at", "created_by", "auto_save"}

type Draft struct {
	mu        sync.Mutex
	id        uuid.UUID
	remoteID  string
	rec       schema.Record
	attempts  int
	dirty     bool
	updatedAt time.Time
	now       func() time.Time
	validator *validate.Validator
}

type Option func(*Draft)

// WithClock sets the clock used for validation and timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Draft) {
		d.now = now
	}
}

// WithID fixes the draft identifier instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(d *Draft) {
		d.id = id
	}
}

// WithRemoteID marks the draft as an edit of an existing backend record.
func WithRemoteID(id string) Option {
	return func(d *Draft) {
		d.remoteID = id
	}
}

func newDraft(rec schema.Record, opts []Option) *Draft {
	d := &Draft{id: uuid.New(), rec: rec, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	d.validator = validate.New(validate.WithClock(d.now))
	d.updatedAt = d.now()
	return d
}

// New starts an empty draft.
func New(opts ...Option) *Draft {
	return newDraft(schema.Defaults(), opts)
}

// Hydrate starts a draft from a fetched record, merged over the defaults.
// The record's id, when present, becomes the remote id.
func Hydrate(fetched schema.Record, opts ...Option) *Draft {
	d := newDraft(schema.MergeWithDefaults(fetched), opts)
	if d.remoteID == "" {
		if id, ok := schema.TextOf(fetched["id"]); ok {
			d.remoteID = id
		}
	}
	return d
}

func (d *Draft) ID() uuid.UUID {
	return d.id
}

// RemoteID is the backend id of the record being edited, or "".
func (d *Draft) RemoteID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.remoteID
}

func (d *Draft) SetRemoteID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remoteID = id
}

func (d *Draft) UpdatedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updatedAt
}

// IsDirty reports whether the draft changed since it was created or last
// marked saved.
func (d *Draft) IsDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

func (d *Draft) MarkSaved() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirty = false
}

// Attempts is the number of submissions built so far.
func (d *Draft) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Record returns a copy of the current values.
func (d *Draft) Record() schema.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return schema.CloneRecord(d.rec)
}

// Get returns the value of section.field.
func (d *Draft) Get(section, field string) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return schema.Clone(schema.SectionOf(d.rec, section)[field])
}

// Set stores a value and returns that field's validation message, "" when
// it passes.
func (d *Draft) Set(section, field string, value any) (string, error) {
	if _, ok := schema.Lookup(section, field); !ok || section == schema.Personnel {
		return "", fmt.Errorf("%w: %s.%s", constants.ErrUnknownField, section, field)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	values := schema.SectionOf(d.rec, section)
	if values == nil {
		values = schema.SectionDefaults(section)
		d.rec[section] = values
	}
	values[field] = value
	d.touch()
	return d.validator.Field(section, field, value), nil
}

// AddPersonnel appends an empty personnel entry and returns its index.
func (d *Draft) AddPersonnel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.personnel()
	d.rec[schema.Personnel] = append(list, schema.PersonnelDefaults())
	d.touch()
	return len(list)
}

// RemovePersonnel deletes the entry at index, keeping the order of the rest.
func (d *Draft) RemovePersonnel(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.personnel()
	if index < 0 || index >= len(list) {
		return fmt.Errorf("%w: %d", constants.ErrPersonnelIndex, index)
	}
	d.rec[schema.Personnel] = append(list[:index:index], list[index+1:]...)
	d.touch()
	return nil
}

// SetPersonnel stores a value on one personnel entry and returns its
// validation message.
func (d *Draft) SetPersonnel(index int, field string, value any) (string, error) {
	if _, ok := schema.Lookup(schema.Personnel, field); !ok {
		return "", fmt.Errorf("%w: %s.%s", constants.ErrUnknownField, schema.Personnel, field)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.personnel()
	if index < 0 || index >= len(list) {
		return "", fmt.Errorf("%w: %d", constants.ErrPersonnelIndex, index)
	}
	entry, ok := list[index].(map[string]any)
	if !ok {
		entry = schema.PersonnelDefaults()
		list[index] = entry
	}
	entry[field] = value
	d.touch()
	return d.validator.Field(schema.Personnel, field, value), nil
}

// personnel returns the entry list, replacing a malformed value with an
// empty list. Callers hold mu.
func (d *Draft) personnel() []any {
	list, ok := d.rec[schema.Personnel].([]any)
	if !ok {
		list = []any{}
		d.rec[schema.Personnel] = list
	}
	return list
}

func (d *Draft) touch() {
	d.dirty = true
	d.updatedAt = d.now()
}

// Validate validates the whole draft.
func (d *Draft) Validate() validate.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validator.Record(d.rec)
}

// Completion reports how much of the tracked form is filled in.
func (d *Draft) Completion() validate.CompletionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return validate.Completion(d.rec)
}

// Submission validates the draft and builds the payload sent to the
// backend: sanitized, normalized, stripped of backend metadata and stamped
// with the form identity, the submission time and the attempt number.
// An invalid draft yields a *validate.Error and does not count as an
// attempt.
func (d *Draft) Submission() (schema.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if report := d.validator.Record(d.rec); !report.IsValid() {
		return nil, &validate.Error{Report: report}
	}
	d.attempts++
	payload := d.payload()
	payload["form_id"] = constants.FormID
	payload["form_version"] = constants.FormVersion
	payload["submission_timestamp"] = d.now().UTC().Format(time.RFC3339)
	payload["submission_attempt"] = d.attempts
	return payload, nil
}

// AutoSavePayload returns the payload for a periodic background save. It
// only applies to edits of an existing record that are dirty and valid.
func (d *Draft) AutoSavePayload() (schema.Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remoteID == "" || !d.dirty {
		return nil, false
	}
	if !d.validator.Record(d.rec).IsValid() {
		return nil, false
	}
	payload := d.payload()
	payload["auto_save"] = true
	return payload, true
}

func (d *Draft) payload() schema.Record {
	payload := normalize.Normalize(normalize.SanitizeRecord(d.rec))
	for _, k := range metadataKeys {
		delete(payload, k)
	}
	return payload
}
