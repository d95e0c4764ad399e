package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tvinspection/tvinspect/pkg/constants"
	"github.com/tvinspection/tvinspect/pkg/draft"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

const createTable = `
CREATE TABLE IF NOT EXISTS drafts (
	id          TEXT PRIMARY KEY,
	remote_id   TEXT NOT NULL DEFAULT '',
	broadcaster TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL,
	data        BLOB NOT NULL
)`

const upsertDraft = `
INSERT INTO drafts (id, remote_id, broadcaster, updated_at, data)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	remote_id = excluded.remote_id,
	broadcaster = excluded.broadcaster,
	updated_at = excluded.updated_at,
	data = excluded.data`

// SQLiteStore is a Store in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// Open opens or creates the drafts database at path. ":memory:" gives a
// private in-memory database.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create drafts directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open drafts database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create drafts table: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, d *draft.Draft) error {
	data, err := d.Encode()
	if err != nil {
		return err
	}
	broadcaster, _ := d.Get(schema.AdministrativeInfo, "name_of_broadcaster").(string)
	_, err = s.db.ExecContext(ctx, upsertDraft,
		d.ID().String(), d.RemoteID(), broadcaster, d.UpdatedAt().UnixNano(), data)
	if err != nil {
		return fmt.Errorf("failed to save draft %s: %w", d.ID(), err)
	}
	s.logger.Debug().Str("draft", d.ID().String()).Int("bytes", len(data)).Msg("draft saved")
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID, opts ...draft.Option) (*draft.Draft, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM drafts WHERE id = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, constants.ErrDraftNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft %s: %w", id, err)
	}
	return draft.Decode(data, opts...)
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, remote_id, broadcaster, updated_at FROM drafts ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum     Summary
			id      string
			updated int64
		)
		if err := rows.Scan(&id, &sum.RemoteID, &sum.Broadcaster, &updated); err != nil {
			return nil, err
		}
		if sum.ID, err = uuid.Parse(id); err != nil {
			s.logger.Warn().Str("id", id).Msg("skipping draft with malformed id")
			continue
		}
		sum.UpdatedAt = time.Unix(0, updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("draft %s: %w", id, constants.ErrDraftNotFound)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
