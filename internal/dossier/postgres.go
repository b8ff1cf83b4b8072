package dossier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists dossier payloads in the dossiers table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Put implements Store. Re-storing an existing hash keeps the original row.
func (s *PostgresStore) Put(ctx context.Context, hash string, payload json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dossiers (data_hash, payload, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (data_hash) DO NOTHING`,
		hash, []byte(payload),
	)
	if err != nil {
		return fmt.Errorf("store dossier %q: %w", hash, err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, hash string) (json.RawMessage, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		"SELECT payload FROM dossiers WHERE data_hash = $1", hash,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("hash %q: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get dossier %q: %w", hash, err)
	}
	return payload, nil
}
