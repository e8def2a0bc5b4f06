package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
    entry_key VARCHAR(191) PRIMARY KEY,
    entry_value LONGTEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);
`

// MySQL backs the store with a single two-column table. The upsert keeps
// whole-collection rewrites atomic per key.
type MySQL struct {
	db *sql.DB
}

// NewMySQL opens the connection with pooling defaults and ensures the
// key-value table exists.
func NewMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetConnMaxLifetime(time.Minute * 5)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	pingCtx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply kv schema: %w", err)
	}

	return &MySQL{db: db}, nil
}

func (m *MySQL) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT entry_value FROM kv_entries WHERE entry_key = ?`
	var value string
	if err := m.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select %s: %w", key, err)
	}
	return value, true, nil
}

func (m *MySQL) Set(ctx context.Context, key, value string) error {
	const query = `
INSERT INTO kv_entries (entry_key, entry_value) VALUES (?, ?)
ON DUPLICATE KEY UPDATE entry_value = VALUES(entry_value)`
	if _, err := m.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (m *MySQL) Remove(ctx context.Context, key string) error {
	const query = `DELETE FROM kv_entries WHERE entry_key = ?`
	if _, err := m.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (m *MySQL) Close() error {
	return m.db.Close()
}
