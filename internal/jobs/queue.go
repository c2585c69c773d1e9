// Package jobs is the background work queue. Producers enqueue typed jobs;
// consumers dispatch them to registered handlers. Two queue implementations
// exist: an in-process channel queue for tests and single-node deployments,
// and a Kafka-backed queue for everything else.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names a background job type. Handlers register per kind.
type Kind string

const (
	KindDOISyncIndex Kind = "doi.sync_index"
	// KindDOIUpdateURL re-registers the handle record after a target URL
	// change on an already-registered DOI.
	KindDOIUpdateURL Kind = "doi.update_url"
	// KindDOIRetryRegistration retries a handle registration that failed
	// after the state transition was persisted.
	KindDOIRetryRegistration Kind = "doi.retry_registration"
	KindClientSyncIndex      Kind = "client.sync_index"
	KindProviderSyncIndex    Kind = "provider.sync_index"
	KindEventSyncIndex       Kind = "event.sync_index"
)

// Job is one unit of background work. Subject is the identifier of the entity
// the job concerns (DOI string, client symbol, provider symbol or event UUID).
type Job struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Subject    string            `json:"subject"`
	Payload    map[string]string `json:"payload,omitempty"`
	Attempts   int               `json:"attempts"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// NewJob builds a job with a fresh identifier.
func NewJob(kind Kind, subject string, now time.Time) Job {
	return Job{ID: uuid.NewString(), Kind: kind, Subject: subject, EnqueuedAt: now}
}

// Queue accepts jobs for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
	Close() error
}

// Handler processes one job. A returned error marks the attempt failed; the
// dispatcher decides whether to retry.
type Handler func(ctx context.Context, j Job) error
