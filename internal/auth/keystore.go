package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlAPIKeys = `
CREATE TABLE IF NOT EXISTS api_keys (
    key_hash    TEXT         PRIMARY KEY,
    name        TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    revoked_at  TIMESTAMPTZ
);
`

// Keystore validates API keys against a PostgreSQL api_keys table holding
// SHA-256 key hashes. All methods are safe for concurrent use.
type Keystore struct {
	pool *pgxpool.Pool
}

// NewKeystore establishes a connection pool to the database at dsn and
// ensures the api_keys table exists. The migration is idempotent and safe to
// run on every start.
func NewKeystore(ctx context.Context, dsn string) (*Keystore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("auth keystore: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("auth keystore: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("auth keystore: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlAPIKeys); err != nil {
		pool.Close()
		return nil, fmt.Errorf("auth keystore: migrate: %w", err)
	}

	return &Keystore{pool: pool}, nil
}

// Authenticate implements [Authenticator]. Revoked keys are rejected the
// same way as unknown ones.
func (k *Keystore) Authenticate(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	const q = `SELECT revoked_at IS NOT NULL FROM api_keys WHERE key_hash = $1`

	var revoked bool
	err := k.pool.QueryRow(ctx, q, HashKey(key)).Scan(&revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInvalidKey
	}
	if err != nil {
		return fmt.Errorf("auth keystore: lookup: %w", err)
	}
	if revoked {
		return ErrInvalidKey
	}
	return nil
}

// AddKey stores key under an operator-facing name. Re-adding an existing key
// updates its name and clears any revocation.
func (k *Keystore) AddKey(ctx context.Context, name, key string) error {
	const q = `
		INSERT INTO api_keys (key_hash, name)
		VALUES ($1, $2)
		ON CONFLICT (key_hash) DO UPDATE SET name = $2, revoked_at = NULL`

	if _, err := k.pool.Exec(ctx, q, HashKey(key), name); err != nil {
		return fmt.Errorf("auth keystore: add key: %w", err)
	}
	return nil
}

// RevokeKey marks key as revoked. Revoking an unknown or already revoked key
// is a no-op.
func (k *Keystore) RevokeKey(ctx context.Context, key string) error {
	const q = `UPDATE api_keys SET revoked_at = now() WHERE key_hash = $1 AND revoked_at IS NULL`

	if _, err := k.pool.Exec(ctx, q, HashKey(key)); err != nil {
		return fmt.Errorf("auth keystore: revoke key: %w", err)
	}
	return nil
}

// Ping reports whether the backing database is reachable. Used by the
// readiness endpoint.
func (k *Keystore) Ping(ctx context.Context) error {
	return k.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (k *Keystore) Close() {
	k.pool.Close()
}
