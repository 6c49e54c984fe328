package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	xerrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/journal"
	"AutoLP-Chain/internal/operation"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewSelectsDriver(t *testing.T) {
	ctx := context.Background()

	pub, err := New(ctx, Config{})
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	if _, ok := pub.(NopPublisher); !ok {
		t.Fatalf("expected nop publisher, got %T", pub)
	}

	pub, err = New(ctx, Config{Driver: "Memory"})
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	if _, ok := pub.(*MemoryPublisher); !ok {
		t.Fatalf("expected memory publisher, got %T", pub)
	}

	pub, err = New(ctx, Config{Driver: "kafka", Kafka: KafkaConfig{Brokers: []string{"127.0.0.1:9092"}}})
	if err != nil {
		t.Fatalf("kafka driver: %v", err)
	}
	kp, ok := pub.(*KafkaPublisher)
	if !ok || kp.Topic() != "autolp.operations" {
		t.Fatalf("unexpected kafka publisher %T", pub)
	}
	_ = kp.Close()

	if _, err := New(ctx, Config{Driver: "pigeon"}); !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestConstructorsRequireEndpoints(t *testing.T) {
	ctx := context.Background()
	if _, err := NewRedisPublisher(ctx, RedisConfig{}); err == nil {
		t.Fatal("expected redis address error")
	}
	if _, err := NewRabbitMQPublisher(RabbitMQConfig{}); err == nil {
		t.Fatal("expected rabbitmq url error")
	}
	if _, err := NewKafkaPublisher(KafkaConfig{}); err == nil {
		t.Fatal("expected kafka brokers error")
	}
}

func TestEncodeRecord(t *testing.T) {
	data, err := Encode(journal.Record{ID: "op-1", Kind: operation.KindSwap, Status: operation.StatusFailed, ErrorCode: "QUOTE_FAILED"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["id"] != "op-1" || decoded["kind"] != "SWAP" || decoded["status"] != "failed" || decoded["error_code"] != "QUOTE_FAILED" {
		t.Fatalf("unexpected payload %s", data)
	}
}

func TestReporterPublishesResults(t *testing.T) {
	pub := NewMemoryPublisher()
	wallet := common.HexToAddress("0x00000000000000000000000000000000000c0001")
	Reporter(pub).Report(context.Background(), operation.Result{ID: "op-9", Kind: operation.KindAdd, Wallet: wallet, Success: true})

	records := pub.Records()
	if len(records) != 1 {
		t.Fatalf("expected one event, got %d", len(records))
	}
	if records[0].Wallet != wallet.Hex() || records[0].Status != operation.StatusSucceeded {
		t.Fatalf("unexpected event %+v", records[0])
	}
}

type brokenPublisher struct{ calls int }

func (b *brokenPublisher) Publish(context.Context, journal.Record) error {
	b.calls++
	return errors.New("broker down")
}

func (b *brokenPublisher) Close() error { return nil }

func TestReporterSwallowsPublishFailure(t *testing.T) {
	pub := &brokenPublisher{}
	Reporter(pub).Report(context.Background(), operation.Result{ID: "op"})
	if pub.calls != 1 {
		t.Fatalf("expected one publish attempt, got %d", pub.calls)
	}
	Reporter(nil).Report(context.Background(), operation.Result{ID: "op"})
}

func TestMemoryPublisherClosed(t *testing.T) {
	pub := NewMemoryPublisher()
	_ = pub.Close()
	if err := pub.Publish(context.Background(), journal.Record{ID: "late"}); err == nil {
		t.Fatal("expected error after close")
	}
}
