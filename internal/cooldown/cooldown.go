// Package cooldown persists the last productive run of an entry point so a
// later invocation can refuse to run until the configured interval elapsed.
package cooldown

import (
	"context"
	"fmt"
	"time"

	"AutoLP-Chain/internal/clock"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/pkg/logger"
)

// CodeCooldownActive is returned by Gate.Check while the interval is running.
const CodeCooldownActive apperrors.Code = "COOLDOWN_ACTIVE"

func init() {
	apperrors.Register(CodeCooldownActive, apperrors.Attributes{
		Message:   "cooldown active",
		Severity:  apperrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Record is the durable cooldown state.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Store loads and saves one record per key.
type Store interface {
	Load(ctx context.Context, key string) (Record, bool, error)
	Save(ctx context.Context, key string, record Record) error
}

// Status is the gate's view of a key at a point in time.
type Status struct {
	Key       string        `json:"key"`
	Found     bool          `json:"found"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	Remaining time.Duration `json:"remaining"`
	Active    bool          `json:"active"`
}

// Gate enforces one cooldown interval for one key.
type Gate struct {
	store    Store
	key      string
	duration time.Duration
	clock    clock.Clock
}

// NewGate constructs a gate. A nil clock uses the system clock.
func NewGate(store Store, key string, duration time.Duration, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.System()
	}
	return &Gate{store: store, key: key, duration: duration, clock: clk}
}

// Key returns the record key.
func (g *Gate) Key() string { return g.key }

// Duration returns the enforced interval.
func (g *Gate) Duration() time.Duration { return g.duration }

// Status reads the record. An unreadable record is reported as absent so a
// damaged store never blocks the operator.
func (g *Gate) Status(ctx context.Context) Status {
	status := Status{Key: g.key, Duration: g.duration}
	record, found, err := g.store.Load(ctx, g.key)
	if err != nil {
		logger.Named("cooldown").Warn("读取冷却记录失败，按无记录处理", "key", g.key, "error", err)
		return status
	}
	if !found {
		return status
	}
	status.Found = true
	status.LastRun = record.Timestamp
	status.Message = record.Message
	status.Remaining = clock.Remaining(g.clock.Now(), record.Timestamp, g.duration)
	status.Active = status.Remaining > 0
	return status
}

// Check fails with COOLDOWN_ACTIVE while now - last run < duration.
func (g *Gate) Check(ctx context.Context) (Status, error) {
	status := g.Status(ctx)
	if !status.Active {
		return status, nil
	}
	return status, apperrors.New(CodeCooldownActive,
		fmt.Sprintf("cooldown %s active, last run %s, %s remaining",
			g.key, status.LastRun.Format(time.RFC3339), status.Remaining.Round(time.Second)),
		apperrors.WithMetadata("key", g.key),
		apperrors.WithMetadata("remaining", status.Remaining.String()))
}

// Mark records now as the last productive run.
func (g *Gate) Mark(ctx context.Context, message string) error {
	if message == "" {
		message = fmt.Sprintf("cooldown %s after operations", g.duration)
	}
	record := Record{Timestamp: g.clock.Now().UTC(), Message: message}
	if err := g.store.Save(ctx, g.key, record); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "保存冷却记录失败",
			apperrors.WithMetadata("key", g.key))
	}
	logger.Named("cooldown").Info("冷却开始", "key", g.key, "duration", g.duration.String(),
		"until", record.Timestamp.Add(g.duration).Format(time.RFC3339))
	return nil
}
