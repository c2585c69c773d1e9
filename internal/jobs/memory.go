package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const maxAttempts = 3

// Memory is an in-process queue backed by a buffered channel. Jobs survive
// only as long as the process; it serves tests and single-node deployments.
type Memory struct {
	inbox chan Job
	log   *zap.Logger

	mu       sync.Mutex
	handlers map[Kind]Handler
	closed   bool
}

func NewMemory(buffer int, log *zap.Logger) *Memory {
	if buffer < 1 {
		buffer = 256
	}
	return &Memory{
		inbox:    make(chan Job, buffer),
		log:      log,
		handlers: make(map[Kind]Handler),
	}
}

// Handle registers the handler for a job kind. Registration must finish
// before Run starts.
func (m *Memory) Handle(kind Kind, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = h
}

func (m *Memory) Enqueue(ctx context.Context, j Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.inbox <- j:
		return nil
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.inbox)
	}
	return nil
}

// Run consumes jobs until the context is cancelled or the queue is closed.
// Failed jobs are re-enqueued up to maxAttempts; exhausted jobs are logged
// and dropped.
func (m *Memory) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok := <-m.inbox:
			if !ok {
				return nil
			}
			m.dispatch(ctx, j)
		}
	}
}

func (m *Memory) dispatch(ctx context.Context, j Job) {
	m.mu.Lock()
	h, ok := m.handlers[j.Kind]
	m.mu.Unlock()
	if !ok {
		m.log.Warn("no handler for job kind", zap.String("kind", string(j.Kind)))
		return
	}
	if err := h(ctx, j); err != nil {
		j.Attempts++
		if j.Attempts >= maxAttempts {
			m.log.Error("job exhausted retries",
				zap.String("kind", string(j.Kind)),
				zap.String("subject", j.Subject),
				zap.Int("attempts", j.Attempts),
				zap.Error(err))
			return
		}
		m.log.Warn("job failed, retrying",
			zap.String("kind", string(j.Kind)),
			zap.String("subject", j.Subject),
			zap.Int("attempts", j.Attempts),
			zap.Error(err))
		select {
		case m.inbox <- j:
		default:
			m.log.Error("retry dropped, queue full", zap.String("subject", j.Subject))
		}
	}
}
