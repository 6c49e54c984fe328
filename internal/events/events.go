// Package events publishes finished operations to an external broker so
// other services can follow the orchestrator without polling the journal.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	xerrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/journal"
	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/pkg/logger"
)

// Publisher 将操作记录投递到外部通道。
type Publisher interface {
	Publish(ctx context.Context, record journal.Record) error
	Close() error
}

// Config 汇总各通道的连接参数，由 Driver 选择实际使用的实现。
type Config struct {
	Driver   string
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Kafka    KafkaConfig
}

// New 根据驱动名称创建 Publisher。
func New(ctx context.Context, cfg Config) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return NopPublisher{}, nil
	case "memory":
		return NewMemoryPublisher(), nil
	case "redis":
		return NewRedisPublisher(ctx, cfg.Redis)
	case "rabbitmq", "amqp":
		return NewRabbitMQPublisher(cfg.RabbitMQ)
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的事件驱动: %q", cfg.Driver))
	}
}

// Encode 将记录序列化为事件负载。
func Encode(record journal.Record) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("序列化操作事件失败: %w", err)
	}
	return data, nil
}

// Reporter 把完成的操作转发给 Publisher。发布失败只记录日志。
func Reporter(pub Publisher) operation.Reporter {
	return operation.ReporterFunc(func(ctx context.Context, r operation.Result) {
		if pub == nil {
			return
		}
		if err := pub.Publish(ctx, journal.FromResult(r)); err != nil {
			err = xerrors.Wrap(xerrors.CodePublishFailure, err, "发布操作事件失败")
			logger.Named("events").Warn("操作事件发布失败",
				slog.String("id", r.ID),
				slog.String("kind", string(r.Kind)),
				slog.Any("error", err),
			)
		}
	})
}

// NopPublisher 丢弃所有事件。
type NopPublisher struct{}

// Publish 实现 Publisher 接口。
func (NopPublisher) Publish(context.Context, journal.Record) error { return nil }

// Close 实现 Publisher 接口。
func (NopPublisher) Close() error { return nil }

// MemoryPublisher 在内存中保留已发布的事件，主要用于测试与本地调试。
type MemoryPublisher struct {
	mu      sync.Mutex
	records []journal.Record
	closed  bool
}

// NewMemoryPublisher 创建 MemoryPublisher。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 实现 Publisher 接口。
func (m *MemoryPublisher) Publish(_ context.Context, record journal.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("事件通道已关闭")
	}
	m.records = append(m.records, record)
	return nil
}

// Records 返回已发布事件的副本。
func (m *MemoryPublisher) Records() []journal.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]journal.Record(nil), m.records...)
}

// Close 实现 Publisher 接口。
func (m *MemoryPublisher) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
