package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL is compiled into the binary at build time so schema init
// works inside the runtime image without shipping the .sql file.
//
//go:embed schema.sql
var schemaSQL string

// PostgresKV is the durable backend: one upserted kv_blobs row per
// namespace/key pair with a jsonb value.
type PostgresKV struct {
	pool *pgxpool.Pool
}

// ConnectPostgres initializes the pgx connection pool and applies the
// embedded schema.
func ConnectPostgres(ctx context.Context, connStr string) (*PostgresKV, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %v", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("[Store] Connected to PostgreSQL, kv_blobs schema ready")
	return &PostgresKV{pool: pool}, nil
}

func (s *PostgresKV) Read(ctx context.Context, namespace, key string, out any) (bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_blobs WHERE namespace = $1 AND key = $2`,
		namespace, key).Scan(&raw)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("corrupt blob %s/%s: %v", namespace, key, err)
	}
	return true, nil
}

func (s *PostgresKV) Write(ctx context.Context, namespace, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %v", namespace, key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO kv_blobs (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW();
	`, namespace, key, raw)
	return err
}

func (s *PostgresKV) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM kv_blobs WHERE namespace = $1 AND key = $2`, namespace, key)
	return err
}

func (s *PostgresKV) Backend() string { return "postgres" }

func (s *PostgresKV) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
