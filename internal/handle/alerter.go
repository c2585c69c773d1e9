package handle

import (
	"context"

	"go.uber.org/zap"
)

// Alerter notifies operators about non-success responses from the handle
// service. The core never retries on its own, so alerts are the trigger for
// operator follow-up.
type Alerter interface {
	Alert(ctx context.Context, title, message string)
}

// NopAlerter discards alerts. Used in tests and deterministic mode.
type NopAlerter struct{}

func (NopAlerter) Alert(context.Context, string, string) {}

// LogAlerter writes alerts to the error log until a chat/webhook sink is
// wired in deployment.
type LogAlerter struct {
	Log *zap.Logger
}

func (a LogAlerter) Alert(_ context.Context, title, message string) {
	a.Log.Error("handle alert", zap.String("title", title), zap.String("message", message))
}
