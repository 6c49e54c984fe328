package events

import (
	"context"
	"errors"
	"fmt"

	"AutoLP-Chain/internal/journal"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 事件通道的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Key 同时作为历史列表的键和 Pub/Sub 频道名。
	Key string
	// MaxLen 限制历史列表长度，0 表示使用默认值。
	MaxLen int64
}

// RedisPublisher LPUSH 事件到列表并 PUBLISH 给在线订阅者。
type RedisPublisher struct {
	client redis.UniversalClient
	key    string
	maxLen int64
}

// NewRedisPublisher 创建 RedisPublisher 并校验连接。
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisPublisherWithClient(client, cfg.Key, cfg.MaxLen), nil
}

// NewRedisPublisherWithClient 复用已有客户端。
func NewRedisPublisherWithClient(client redis.UniversalClient, key string, maxLen int64) *RedisPublisher {
	if key == "" {
		key = "autolp:operations"
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisPublisher{client: client, key: key, maxLen: maxLen}
}

// Publish 实现 Publisher 接口。
func (p *RedisPublisher) Publish(ctx context.Context, record journal.Record) error {
	data, err := Encode(record)
	if err != nil {
		return err
	}
	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, p.key, data)
		pipe.LTrim(ctx, p.key, 0, p.maxLen-1)
		pipe.Publish(ctx, p.key, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close 实现 Publisher 接口。
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
