// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "twse-backtester/internal/errors"
	"twse-backtester/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Candles table for historical OHLCV data
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_candles_symbol_ts ON candles(symbol, timestamp);

	-- Completed backtest results
	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		version_code TEXT NOT NULL,
		total_return REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveCandles upserts a price series; the latest record wins per
// (symbol, timestamp).
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol string, records []models.PriceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.Wrap(err, "preparing statement")
	}
	defer stmt.Close()

	for _, record := range records {
		if _, err := stmt.ExecContext(ctx, symbol, record.Timestamp.UTC(),
			record.Open, record.High, record.Low, record.Close, record.Volume); err != nil {
			return apperrors.Wrapf(err, "inserting candle %s %s", symbol, models.DateKey(record.Timestamp))
		}
	}
	return tx.Commit()
}

// GetCandles returns the stored series for symbol within [from, to],
// ordered by timestamp ascending. Zero bounds are treated as open.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceRecord, error) {
	query := `SELECT timestamp, open, high, low, close, volume FROM candles WHERE symbol = ?`
	args := []interface{}{symbol}
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "querying candles")
	}
	defer rows.Close()

	var records []models.PriceRecord
	for rows.Next() {
		record := models.PriceRecord{Symbol: symbol}
		if err := rows.Scan(&record.Timestamp, &record.Open, &record.High,
			&record.Low, &record.Close, &record.Volume); err != nil {
			return nil, apperrors.Wrap(err, "scanning candle")
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ListSymbols returns all symbols with stored candles.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM candles ORDER BY symbol`)
	if err != nil {
		return nil, apperrors.Wrap(err, "querying symbols")
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, apperrors.Wrap(err, "scanning symbol")
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// SaveResult stores a completed backtest result under id.
func (s *SQLiteStore) SaveResult(ctx context.Context, id string, result *models.BacktestResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return apperrors.Wrap(err, "encoding result")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results (id, version_code, total_return, max_drawdown, total_trades, result_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, result.VersionCode, result.Metrics.TotalReturn, result.Metrics.MaxDrawdown,
		result.Metrics.TotalTrades, string(payload))
	return apperrors.Wrap(err, "saving result")
}

// GetResult loads a stored backtest result by id.
func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*models.BacktestResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM results WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrResultNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "querying result")
	}
	var result models.BacktestResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, apperrors.Wrap(err, "decoding result")
	}
	return &result, nil
}

// ListResults returns summaries of all stored results, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context) ([]ResultMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version_code, total_return, max_drawdown, total_trades, created_at
		FROM results ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperrors.Wrap(err, "querying results")
	}
	defer rows.Close()

	var metas []ResultMeta
	for rows.Next() {
		var meta ResultMeta
		if err := rows.Scan(&meta.ID, &meta.VersionCode, &meta.TotalReturn,
			&meta.MaxDrawdown, &meta.TotalTrades, &meta.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, "scanning result")
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
