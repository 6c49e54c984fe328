// Package sqldb opens MySQL or PostgreSQL connection pools and applies the
// embedded schema migrations shared by the journal and cooldown stores.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	// 注册数据库驱动。
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Dialect 表示 SQL 方言。
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// ParseDialect 将配置中的驱动名转换为方言。
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	default:
		return "", fmt.Errorf("不支持的数据库驱动: %q", driver)
	}
}

// Config 描述连接池参数。
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DB 包装 *sql.DB 并记录方言，以便改写占位符。
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open 建立连接池、校验连通性并执行迁移。
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s DSN 不能为空", dialect)
	}

	db, err := sql.Open(string(dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", dialect, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 %s: %w", dialect, err)
	}

	wrapped := &DB{DB: db, dialect: dialect}
	if err := wrapped.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return wrapped, nil
}

// Dialect 返回当前方言。
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Rebind 将 ? 占位符改写为当前方言的形式。
func (d *DB) Rebind(query string) string {
	return Rebind(d.dialect, query)
}

// Rebind 将 ? 占位符改写为 PostgreSQL 的 $n 形式；MySQL 原样返回。
func Rebind(dialect Dialect, query string) string {
	if dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
