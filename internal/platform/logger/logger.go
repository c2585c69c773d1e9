package logger

import (
	"go.uber.org/zap"
)

// New returns a production zap logger. Components receive it at construction
// rather than reaching for a global, so tests can substitute zap.NewNop().
func New() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
