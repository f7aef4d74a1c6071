package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
)

// SQLiteStore implements SignalStore and BarStore on SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
	barLimit  int
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
		barLimit:  500,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// WithBarLimit caps how many recent bars Bars returns.
func (s *SQLiteStore) WithBarLimit(n int) *SQLiteStore {
	if n > 0 {
		s.barLimit = n
	}
	return s
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);

	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		generated_at DATETIME NOT NULL,
		direction TEXT NOT NULL,
		confidence REAL NOT NULL,
		quality TEXT NOT NULL,
		data_quality TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bars_symbol_tf ON bars(symbol, timeframe, timestamp);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol_time ON signals(symbol, generated_at);
	CREATE INDEX IF NOT EXISTS idx_signals_quality ON signals(quality);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSignal inserts sig once.
func (s *SQLiteStore) SaveSignal(ctx context.Context, sig models.TradeSignal) error {
	payload, err := encodeSignal(sig)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signals (id, symbol, generated_at, direction, confidence, quality, data_quality, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.ID, sig.Symbol, sig.GeneratedAt.UTC(), string(sig.Direction), sig.Confidence, string(sig.Quality), string(sig.DataQuality), string(payload))
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("signal %s: %w", sig.ID, apperrors.ErrDuplicateSignal)
	}
	return nil
}

// GetSignals returns stored signals, newest first.
func (s *SQLiteStore) GetSignals(ctx context.Context, filter SignalFilter) ([]models.TradeSignal, error) {
	query, args := signalQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var p []byte
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		payloads = append(payloads, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return decodeSignals(payloads)
}

// GetSignal returns one signal by ID.
func (s *SQLiteStore) GetSignal(ctx context.Context, id string) (*models.TradeSignal, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM signals WHERE id = ?`, id).Scan(&payload)
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

// SaveBars upserts bars of one timeframe.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol string, series models.BarSeries) error {
	if series.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range series.Bars {
		if _, err := stmt.ExecContext(ctx, symbol, string(series.Timeframe), b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Bars returns the most recent stored bars, oldest first. It satisfies
// marketdata.Provider so stored history can feed the engine offline.
func (s *SQLiteStore) Bars(ctx context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, symbol, string(tf), s.barLimit)
	if err != nil {
		return models.BarSeries{}, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return models.BarSeries{}, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return models.BarSeries{}, fmt.Errorf("error iterating bars: %w", err)
	}
	if len(bars) == 0 {
		return models.BarSeries{Timeframe: tf}, apperrors.NewDataError(symbol, tf, "no stored bars", apperrors.ErrDataNotFound)
	}

	return models.NewBarSeries(tf, bars), nil
}

// GetLastSync returns the last sync time recorded under key.
func (s *SQLiteStore) GetLastSync(key string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[key]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`SELECT last_sync FROM sync_status WHERE data_type = ?`, key).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[key] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync records a sync time under key.
func (s *SQLiteStore) SetLastSync(key string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, key, t.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[key] = t
	s.mu.Unlock()

	return nil
}
