package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the backend can run against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	sqlCreateState = `
        CREATE TABLE IF NOT EXISTS courier_state (
            id TEXT PRIMARY KEY,
            doc JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );`
	sqlCreateSent = `
        CREATE TABLE IF NOT EXISTS lhm_sent_map (
            key TEXT PRIMARY KEY,
            sent_at BIGINT NOT NULL
        );`
	sqlLoadState = `SELECT doc FROM courier_state WHERE id = $1`
	sqlSaveState = `
        INSERT INTO courier_state (id, doc, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (id) DO UPDATE SET
            doc = EXCLUDED.doc,
            updated_at = EXCLUDED.updated_at;`
	sqlHasKey     = `SELECT EXISTS (SELECT 1 FROM lhm_sent_map WHERE key = $1)`
	sqlUpsertKey  = `INSERT INTO lhm_sent_map (key, sent_at) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET sent_at = EXCLUDED.sent_at`
	sqlInsertKey  = `INSERT INTO lhm_sent_map (key, sent_at) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`
	sqlSelectKeys = `SELECT key, sent_at FROM lhm_sent_map`
	sqlDeleteKeys = `DELETE FROM lhm_sent_map`
)

type postgresBackend struct {
	pool DBPool
	log  *zap.Logger
}

func openPostgres(ctx context.Context, url string, logger *zap.Logger) (*postgresBackend, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	b, err := newPostgresBackend(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// newPostgresBackend verifies the connection and creates the tables when missing.
func newPostgresBackend(ctx context.Context, pool DBPool, logger *zap.Logger) (*postgresBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, ddl := range []string{sqlCreateState, sqlCreateSent} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return &postgresBackend{pool: pool, log: logger.Named("postgres")}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	b, err := newPostgresBackend(ctx, pool, logger)
	if err != nil {
		return nil, err
	}
	return newStore(b, logger), nil
}

func (p *postgresBackend) name() string { return "postgres" }

func (p *postgresBackend) loadState(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, sqlLoadState, stateKey).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func (p *postgresBackend) saveState(ctx context.Context, doc []byte) error {
	_, err := p.pool.Exec(ctx, sqlSaveState, stateKey, doc)
	return err
}

func (p *postgresBackend) hasKey(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx, sqlHasKey, key).Scan(&ok)
	return ok, err
}

func (p *postgresBackend) putKeys(ctx context.Context, entries map[string]int64, overwrite bool) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			p.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	sql := sqlInsertKey
	if overwrite {
		sql = sqlUpsertKey
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.Exec(ctx, sql, k, entries[k]); err != nil {
			return fmt.Errorf("failed to write %q: %w", k, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *postgresBackend) sentMap(ctx context.Context) (map[string]int64, error) {
	rows, err := p.pool.Query(ctx, sqlSelectKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			key string
			at  int64
		)
		if err := rows.Scan(&key, &at); err != nil {
			return nil, err
		}
		out[key] = at
	}
	return out, rows.Err()
}

func (p *postgresBackend) clearKeys(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, sqlDeleteKeys)
	return err
}

// changes is nil: other processes' writes are picked up on the next read only.
func (p *postgresBackend) changes(context.Context) <-chan struct{} { return nil }

func (p *postgresBackend) close() error {
	p.pool.Close()
	return nil
}
