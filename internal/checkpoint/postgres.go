package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/Bloop-Tech/users-also-buy/internal/model"
)

// pgxPool is the subset of pgxpool.Pool the store uses. Kept minimal so
// tests can substitute a pgxmock pool.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists checkpoints in Postgres via pgx. Save is a single
// INSERT ... ON CONFLICT DO UPDATE, atomic by transaction semantics.
type PostgresStore struct {
	pool    pgxPool
	name    string
	closeFn func()
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	name       TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// NewPostgres connects a pool to connString and ensures the checkpoints
// table exists. name identifies this pipeline's checkpoint row.
func NewPostgres(ctx context.Context, connString, name string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "checkpoint: ping")
	}
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "checkpoint: migrate postgres")
	}
	return &PostgresStore{pool: pool, name: name, closeFn: pool.Close}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (*model.Checkpoint, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM checkpoints WHERE name = $1`, s.name,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: select %s", s.name)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: decode %s", s.name)
	}
	return &cp, nil
}

func (s *PostgresStore) Save(ctx context.Context, cp model.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "checkpoint: encode")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (name, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		s.name, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "checkpoint: upsert %s", s.name)
}

func (s *PostgresStore) Delete(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE name = $1`, s.name)
	return eris.Wrapf(err, "checkpoint: delete %s", s.name)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
