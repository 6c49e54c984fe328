package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	xerrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/internal/storage/sqldb"
)

const recordColumns = `id, kind, wallet, token, symbol, amount_in, min_out, deadline, attempts, stage, status, tx_hash, fallback, reason, error_code, created_at, updated_at`

// SQLStore 使用 MySQL 或 PostgreSQL 的 operations 表保存操作日志。
type SQLStore struct {
	db *sqldb.DB
}

// NewSQLStore 基于已完成迁移的连接创建 SQLStore。
func NewSQLStore(db *sqldb.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Append 实现 Store 接口。
func (s *SQLStore) Append(ctx context.Context, record Record) error {
	if record.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "操作 ID 不能为空")
	}
	query := s.db.Rebind(`INSERT INTO operations (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		string(record.Kind),
		record.Wallet,
		record.Token,
		record.Symbol,
		record.AmountIn,
		record.MinOut,
		record.Deadline,
		record.Attempts,
		string(record.Stage),
		string(record.Status),
		record.TxHash,
		record.Fallback,
		record.Reason,
		record.ErrorCode,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入操作日志失败")
	}
	return nil
}

// List 实现 Store 接口。
func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	opts.applyDefaults()

	where, args := buildFilterClause(opts)
	order := "DESC"
	if opts.Order == SortByCreatedAsc {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM operations%s ORDER BY created_at %s, updated_at %s LIMIT ? OFFSET ?`, recordColumns, where, order, order)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询操作日志失败")
	}
	defer rows.Close()

	records := make([]Record, 0, opts.Limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析操作日志失败")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历操作日志失败")
	}
	return records, nil
}

// Stats 实现 Store 接口。
func (s *SQLStore) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()
	where, args := buildFilterClause(opts)

	query := `SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN fallback THEN 1 ELSE 0 END), 0),
       COALESCE(MIN(created_at), 0),
       COALESCE(MAX(created_at), 0)
FROM operations` + where
	statArgs := append([]any{
		string(operation.StatusSucceeded),
		string(operation.StatusSkipped),
		string(operation.StatusFailed),
	}, args...)

	stats := Stats{ByKind: make(map[string]int)}
	err := s.db.QueryRowContext(ctx, s.db.Rebind(query), statArgs...).Scan(
		&stats.Total,
		&stats.Succeeded,
		&stats.Skipped,
		&stats.Failed,
		&stats.Fallbacks,
		&stats.OldestCreated,
		&stats.NewestCreated,
	)
	if err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计操作日志失败")
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT kind, COUNT(*) FROM operations`+where+` GROUP BY kind`), args...)
	if err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "按类型统计操作日志失败")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析统计结果失败")
		}
		stats.ByKind[kind] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历统计结果失败")
	}
	return stats, nil
}

// Close 关闭底层连接池。
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// buildFilterClause 生成带 ? 占位符的 WHERE 子句，调用方负责按方言改写。
func buildFilterClause(opts ListOptions) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(opts.Kinds) > 0 {
		placeholders := make([]string, len(opts.Kinds))
		for i, kind := range opts.Kinds {
			placeholders[i] = "?"
			args = append(args, string(kind))
		}
		clauses = append(clauses, "kind IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if opts.Wallet != "" {
		clauses = append(clauses, "wallet = ?")
		args = append(args, opts.Wallet)
	}
	if opts.CreatedGTE > 0 {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, opts.CreatedGTE)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		record Record
		kind   string
		stage  string
		status string
	)
	err := row.Scan(
		&record.ID,
		&kind,
		&record.Wallet,
		&record.Token,
		&record.Symbol,
		&record.AmountIn,
		&record.MinOut,
		&record.Deadline,
		&record.Attempts,
		&stage,
		&status,
		&record.TxHash,
		&record.Fallback,
		&record.Reason,
		&record.ErrorCode,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	record.Kind = operation.Kind(kind)
	record.Stage = operation.Stage(stage)
	record.Status = operation.Status(status)
	return record, nil
}

var (
	_ Store      = (*SQLStore)(nil)
	_ rowScanner = (*sql.Row)(nil)
)
