package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var reTableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore is a Store backed by a database/sql table. Queries use `?`
// placeholders, so the driver must accept them (sqlite, mysql).
type SQLStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewSQLStore creates the cache table when missing.
func NewSQLStore(ctx context.Context, db *sql.DB, table string) (*SQLStore, error) {
	if table == "" {
		table = "blade_cache"
	}
	if !reTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid cache table name %q", table)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	cache_key VARCHAR(255) PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at BIGINT NOT NULL DEFAULT 0
)`, table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &SQLStore{db: db, table: table, now: time.Now}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	row := s.db.QueryRowContext(ctx, "SELECT value, expires_at FROM "+s.table+" WHERE cache_key = ?", key)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if expiresAt > 0 && s.now().UnixMilli() > expiresAt {
		return nil, false, s.Delete(ctx, key)
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE cache_key = ?", key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO "+s.table+" (cache_key, value, expires_at) VALUES (?, ?, ?)", key, value, expiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE cache_key = ?", key)
	return err
}

func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table)
	return err
}
