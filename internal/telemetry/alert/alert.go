// Package alert defines the hook invoked synchronously for critical
// security events. The default implementation writes an operator-visible
// log line; deployments can plug in paging or chat integrations.
package alert

import (
	"context"
	"log/slog"

	"edgegate/internal/telemetry/models"
)

// Alerter receives critical events as they are recorded.
type Alerter interface {
	Alert(ctx context.Context, event models.SecurityEvent)
}

// LogAlerter is the default Alerter writing to the structured logger.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(ctx context.Context, event models.SecurityEvent) {
	a.logger.ErrorContext(ctx, "SECURITY ALERT",
		"event_id", event.ID,
		"type", event.Type,
		"message", event.Message,
		"ip", event.IP,
		"path", event.Path,
		"risk_score", event.RiskScore,
		"request_id", event.RequestID,
	)
}
