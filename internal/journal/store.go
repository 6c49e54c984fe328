package journal

import (
	"context"
	"log/slog"

	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/pkg/logger"
)

// Stats 聚合操作结果，常用于仪表盘或健康检查。
type Stats struct {
	Total         int            `json:"total"`
	Succeeded     int            `json:"succeeded"`
	Skipped       int            `json:"skipped"`
	Failed        int            `json:"failed"`
	Fallbacks     int            `json:"fallbacks"`
	ByKind        map[string]int `json:"by_kind"`
	OldestCreated int64          `json:"oldest_created_at,omitempty"`
	NewestCreated int64          `json:"newest_created_at,omitempty"`
}

func (s *Stats) add(r Record) {
	s.Total++
	switch r.Status {
	case operation.StatusSucceeded:
		s.Succeeded++
	case operation.StatusSkipped:
		s.Skipped++
	case operation.StatusFailed:
		s.Failed++
	}
	if r.Fallback {
		s.Fallbacks++
	}
	if s.ByKind == nil {
		s.ByKind = make(map[string]int)
	}
	s.ByKind[string(r.Kind)]++
	if r.CreatedAt > s.NewestCreated {
		s.NewestCreated = r.CreatedAt
	}
	if s.OldestCreated == 0 || (r.CreatedAt != 0 && r.CreatedAt < s.OldestCreated) {
		s.OldestCreated = r.CreatedAt
	}
}

// Store 抽象了操作日志的持久化接口。
type Store interface {
	Append(ctx context.Context, record Record) error
	List(ctx context.Context, opts ListOptions) ([]Record, error)
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	Close() error
}

// Reporter 将每个完成的操作写入 store。写入失败只记录日志，不影响操作本身。
func Reporter(store Store) operation.Reporter {
	return operation.ReporterFunc(func(ctx context.Context, r operation.Result) {
		if store == nil {
			return
		}
		if err := store.Append(ctx, FromResult(r)); err != nil {
			logger.Named("journal").Warn("写入操作日志失败", slog.String("id", r.ID), slog.Any("error", err))
		}
	})
}
