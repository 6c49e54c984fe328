package operation

import (
	"context"
	"log/slog"

	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/observability/alerting"
	"AutoLP-Chain/pkg/logger"
)

// AlertReporter forwards failed operations whose error code asks for an
// alert to dispatcher.
func AlertReporter(dispatcher alerting.Dispatcher) Reporter {
	return ReporterFunc(func(ctx context.Context, r Result) {
		if dispatcher == nil || r.Success || r.Skipped || r.Err == nil {
			return
		}
		if !apperrors.ShouldAlert(r.Err) {
			return
		}
		var metadata map[string]string
		if e, ok := apperrors.From(r.Err); ok {
			metadata = e.Metadata()
		}
		event := alerting.Event{
			Code:        apperrors.CodeOf(r.Err),
			Message:     r.Reason,
			Severity:    apperrors.SeverityOf(r.Err),
			OperationID: r.ID,
			Kind:        string(r.Kind),
			Wallet:      r.Wallet.Hex(),
			Token:       r.Token.Hex(),
			Attempts:    r.Attempts,
			Metadata:    metadata,
			OccurredAt:  r.FinishedAt,
		}
		if err := dispatcher.Notify(ctx, event); err != nil {
			logger.Named("operation").Warn("告警派发失败", slog.String("id", r.ID), slog.Any("error", err))
		}
	})
}
