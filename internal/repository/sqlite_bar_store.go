package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"StockCast/internal/domain/models"

	_ "modernc.org/sqlite"
)

// SQLiteBarStore persists daily bars in a local SQLite database, keyed by
// (instrument, date). Historical bars are never edited in place: an upsert
// either appends a new date or overwrites a row whose values changed, and
// the changed dates are reported back to the caller.
type SQLiteBarStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteBarStore opens (or creates) the SQLite database.
func NewSQLiteBarStore(dbPath string) (*SQLiteBarStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for concurrent reads while the refresh path writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	return &SQLiteBarStore{db: db}, nil
}

// Init creates the bars table if needed.
func (s *SQLiteBarStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS bars (
		instrument TEXT NOT NULL,
		date       TEXT NOT NULL,
		open       REAL NOT NULL,
		high       REAL NOT NULL,
		low        REAL NOT NULL,
		close      REAL NOT NULL,
		volume     REAL NOT NULL,
		fetched_at TEXT NOT NULL,
		PRIMARY KEY (instrument, date)
	)`)
	if err != nil {
		return fmt.Errorf("create bars table: %w", err)
	}
	return nil
}

// Upsert inserts bars keyed by (instrument, date). Rows already present
// are overwritten only when the incoming values differ; the dates of such
// revisions are returned.
func (s *SQLiteBarStore) Upsert(ctx context.Context, instrument string, bars []models.Bar) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	selectStmt, err := tx.PrepareContext(ctx,
		`SELECT open, high, low, close, volume FROM bars WHERE instrument = ? AND date = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare select: %w", err)
	}
	defer selectStmt.Close()

	upsertStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO bars (instrument, date, open, high, low, close, volume, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare upsert: %w", err)
	}
	defer upsertStmt.Close()

	var revised []time.Time
	for _, b := range bars {
		day := b.Date.UTC().Format(models.DateLayout)

		var existing models.Bar
		err := selectStmt.QueryRowContext(ctx, instrument, day).Scan(
			&existing.Open, &existing.High, &existing.Low, &existing.Close, &existing.Volume)
		switch {
		case err == sql.ErrNoRows:
			// new date, plain append
		case err != nil:
			return nil, fmt.Errorf("check existing bar: %w", err)
		case b.SameValues(existing):
			continue
		default:
			revised = append(revised, b.Date)
		}

		fetchedAt := b.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}
		if _, err := upsertStmt.ExecContext(ctx, instrument, day,
			b.Open, b.High, b.Low, b.Close, b.Volume,
			fetchedAt.Format(time.RFC3339)); err != nil {
			return nil, fmt.Errorf("upsert bar %s: %w", day, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return revised, nil
}

// Suffix returns up to limit bars dated at or before asOf, ordered by date
// ascending. limit <= 0 returns the whole prefix.
func (s *SQLiteBarStore) Suffix(ctx context.Context, instrument string, asOf time.Time, limit int) ([]models.Bar, error) {
	day := asOf.UTC().Format(models.DateLayout)

	q := `SELECT instrument, date, open, high, low, close, volume, fetched_at
	      FROM bars WHERE instrument = ? AND date <= ? ORDER BY date DESC`
	args := []interface{}{instrument, day}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		var b models.Bar
		var date, fetched string
		if err := rows.Scan(&b.Instrument, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &fetched); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		if b.Date, err = time.ParseInLocation(models.DateLayout, date, time.UTC); err != nil {
			return nil, fmt.Errorf("parse date %q: %w", date, err)
		}
		if b.FetchedAt, err = time.Parse(time.RFC3339, fetched); err != nil {
			return nil, fmt.Errorf("parse fetched_at %q: %w", fetched, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}

	// query returned newest-first; series order is date ascending
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Prune deletes bars strictly older than before.
func (s *SQLiteBarStore) Prune(ctx context.Context, instrument string, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM bars WHERE instrument = ? AND date < ?`,
		instrument, before.UTC().Format(models.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("prune bars: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLiteBarStore) Close() error {
	return s.db.Close()
}
