package cooldown

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"AutoLP-Chain/internal/storage/sqldb"
)

// SQLStore keeps records in the cooldowns table of MySQL or PostgreSQL.
type SQLStore struct {
	db *sqldb.DB
}

// NewSQLStore wraps an opened and migrated database.
func NewSQLStore(db *sqldb.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, key string) (Record, bool, error) {
	var (
		lastRun int64
		message string
	)
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT last_run, message FROM cooldowns WHERE name = ?`), key).
		Scan(&lastRun, &message)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("查询冷却记录失败: %w", err)
	}
	return Record{Timestamp: time.UnixMilli(lastRun).UTC(), Message: message}, true, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, key string, record Record) error {
	query := upsertQuery(s.db.Dialect())
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), key, record.Timestamp.UnixMilli(), record.Message); err != nil {
		return fmt.Errorf("写入冷却记录失败: %w", err)
	}
	return nil
}

func upsertQuery(dialect sqldb.Dialect) string {
	if dialect == sqldb.Postgres {
		return `INSERT INTO cooldowns (name, last_run, message) VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET last_run = EXCLUDED.last_run, message = EXCLUDED.message`
	}
	return `INSERT INTO cooldowns (name, last_run, message) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE last_run = VALUES(last_run), message = VALUES(message)`
}
