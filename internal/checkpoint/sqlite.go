package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Bloop-Tech/users-also-buy/internal/model"
)

// SQLiteStore persists checkpoints in a local SQLite database using
// modernc.org/sqlite. Each checkpoint is one row keyed by name; Save upserts
// the row inside a single statement, which SQLite applies atomically.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	name       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// NewSQLite opens (or creates) the database at dsn and ensures the
// checkpoints table exists. name identifies this pipeline's checkpoint row.
func NewSQLite(dsn, name string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "checkpoint: exec %s", pragma)
		}
	}
	if _, err := db.Exec(sqliteMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "checkpoint: migrate sqlite")
	}
	return &SQLiteStore{db: db, name: name}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*model.Checkpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints WHERE name = ?`, s.name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: select %s", s.name)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: decode %s", s.name)
	}
	return &cp, nil
}

func (s *SQLiteStore) Save(ctx context.Context, cp model.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "checkpoint: encode")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.name, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "checkpoint: upsert %s", s.name)
}

func (s *SQLiteStore) Delete(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE name = ?`, s.name)
	return eris.Wrapf(err, "checkpoint: delete %s", s.name)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
