package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AutoLP-Chain/internal/journal"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig 描述 Kafka 事件通道的连接参数。
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher 以钱包地址为 key 写入 Kafka，同一钱包的事件落在同一分区。
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建 Kafka writer。连接在首次写入时建立。
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("Kafka brokers 不能为空")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "autolp.operations"
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: writer}, nil
}

// Topic 返回写入的主题。
func (p *KafkaPublisher) Topic() string {
	return p.writer.Topic
}

// Publish 实现 Publisher 接口。
func (p *KafkaPublisher) Publish(ctx context.Context, record journal.Record) error {
	data, err := Encode(record)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(record.Wallet),
		Value: data,
		Time:  time.Unix(record.UpdatedAt, 0),
	}); err != nil {
		return fmt.Errorf("Kafka 发布事件失败: %w", err)
	}
	return nil
}

// Close 实现 Publisher 接口。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
