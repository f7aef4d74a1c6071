package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL,
		direction TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		quality TEXT NOT NULL,
		data_quality TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol_time ON signals(symbol, generated_at DESC);
`

// PostgresStore implements SignalStore on PostgreSQL.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, apperrors.NewValidationError("store.dsn", dsn, "database DSN is required for postgres", apperrors.ErrConfigInvalid)
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewPostgresStoreWithDB(db, 30*time.Second)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithDB wraps an open connection.
func NewPostgresStoreWithDB(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

// Migrate creates the signals table.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// SaveSignal inserts sig once.
func (p *PostgresStore) SaveSignal(ctx context.Context, sig models.TradeSignal) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload, err := encodeSignal(sig)
	if err != nil {
		return err
	}

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO signals (id, symbol, generated_at, direction, confidence, quality, data_quality, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		sig.ID, sig.Symbol, sig.GeneratedAt.UTC(), string(sig.Direction), sig.Confidence,
		string(sig.Quality), string(sig.DataQuality), payload)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("signal %s: %w", sig.ID, apperrors.ErrDuplicateSignal)
		}
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("signal %s: %w", sig.ID, apperrors.ErrDuplicateSignal)
	}
	return nil
}

// GetSignals returns stored signals, newest first.
func (p *PostgresStore) GetSignals(ctx context.Context, filter SignalFilter) ([]models.TradeSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query, args := signalQuery(filter)
	var payloads [][]byte
	if err := p.db.SelectContext(ctx, &payloads, p.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	return decodeSignals(payloads)
}

// GetSignal returns one signal by ID.
func (p *PostgresStore) GetSignal(ctx context.Context, id string) (*models.TradeSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var payload []byte
	err := p.db.GetContext(ctx, &payload, `SELECT payload FROM signals WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("signal %s: %w", id, apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}

	sigs, err := decodeSignals([][]byte{payload})
	if err != nil {
		return nil, err
	}
	return &sigs[0], nil
}
