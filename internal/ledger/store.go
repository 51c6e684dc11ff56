package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert validates and stores a transaction, filling in the id and
// timestamp when absent. The stored transaction is returned.
func (s *Store) Insert(ctx context.Context, t Transaction) (*Transaction, error) {
	if t.Type != "deposit" && t.Type != "withdrawal" {
		return nil, fmt.Errorf("type must be 'deposit' or 'withdrawal', got %q", t.Type)
	}
	if t.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", t.Amount)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, type, amount, note, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Type, t.Amount, t.Note, t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}
	return &t, nil
}

// List returns all transactions, newest first.
func (s *Store) List(ctx context.Context) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, amount, note, created_at
		FROM transactions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Type, &t.Amount, &t.Note, &t.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type = 'deposit' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'withdrawal' THEN amount ELSE 0 END), 0)
		FROM transactions`)

	var sum Summary
	if err := row.Scan(&sum.TotalDeposits, &sum.TotalWithdrawals); err != nil {
		return nil, err
	}
	sum.NetDeposited = sum.TotalDeposits - sum.TotalWithdrawals
	return &sum, nil
}
