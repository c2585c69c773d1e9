// Package service ingests harvested events and walks them through their
// processing states. Processing here means projecting the event into the
// search index; the event record itself is immutable apart from its state.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"doria/internal/event/models"
	"doria/internal/event/store"
	"doria/internal/jobs"
	"doria/pkg/domainerrors"
	"doria/pkg/platform/sentinel"
	"doria/pkg/requestcontext"
)

// Service ingests and processes events.
type Service struct {
	events store.Store
	queue  jobs.Queue
	log    *zap.Logger
}

func New(events store.Store, queue jobs.Queue, log *zap.Logger) *Service {
	return &Service{events: events, queue: queue, log: log}
}

// Input carries the fields of a harvested relation.
type Input struct {
	SubjID         string `json:"subj_id"`
	ObjID          string `json:"obj_id"`
	SourceID       string `json:"source_id"`
	SourceToken    string `json:"source_token"`
	RelationTypeID string `json:"relation_type_id"`
	Total          int    `json:"total"`
	OccurredAt     string `json:"occurred_at"`
}

// Create stores a new waiting event.
func (s *Service) Create(ctx context.Context, in Input) (*models.Event, error) {
	now := requestcontext.Now(ctx)
	occurred, err := parseOccurredAt(in.OccurredAt)
	if err != nil {
		return nil, err
	}
	e, err := models.New(in.SubjID, in.ObjID, in.SourceID, in.RelationTypeID, occurred, now)
	if err != nil {
		return nil, err
	}
	e.SourceToken = in.SourceToken
	if in.Total > 0 {
		e.Total = in.Total
	}
	if err := s.events.Create(ctx, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domainerrors.New(domainerrors.CodeConflict, "event already exists")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to create event")
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, uuid string) (*models.Event, error) {
	e, err := s.events.Get(ctx, uuid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "event not found")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load event")
	}
	return e, nil
}

// ProcessBatch claims up to limit waiting events, schedules their index sync
// and marks them done. A scheduling failure marks the event failed so Retry
// can pick it up later. Returns the number of events processed.
func (s *Service) ProcessBatch(ctx context.Context, limit int) (int, error) {
	waiting, err := s.events.ListByState(ctx, models.StateWaiting, limit)
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to list events")
	}
	now := requestcontext.Now(ctx)
	processed := 0
	for _, e := range waiting {
		if err := e.CanStart(); err != nil {
			continue
		}
		e.ApplyStart(now)
		if err := s.events.Update(ctx, e); err != nil {
			s.log.Warn("event claim failed", zap.String("uuid", e.UUID), zap.Error(err))
			continue
		}

		if err := s.queue.Enqueue(ctx, jobs.NewJob(jobs.KindEventSyncIndex, e.UUID, now)); err != nil {
			e.ApplyFail(err.Error(), now)
		} else {
			e.ApplyDone(now)
			processed++
		}
		if err := s.events.Update(ctx, e); err != nil {
			s.log.Warn("event state update failed", zap.String("uuid", e.UUID), zap.Error(err))
		}
	}
	return processed, nil
}

func parseOccurredAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domainerrors.New(domainerrors.CodeValidation, "event is incomplete").
			WithFields(domainerrors.FieldError{Field: "occurred_at", Reason: "must be RFC 3339"})
	}
	return t, nil
}

// Retry moves failed events back to waiting. Returns the number requeued.
func (s *Service) Retry(ctx context.Context, limit int) (int, error) {
	failed, err := s.events.ListByState(ctx, models.StateFailed, limit)
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to list events")
	}
	now := requestcontext.Now(ctx)
	retried := 0
	for _, e := range failed {
		if err := e.CanRetry(); err != nil {
			continue
		}
		e.ApplyRetry(now)
		if err := s.events.Update(ctx, e); err != nil {
			s.log.Warn("event retry failed", zap.String("uuid", e.UUID), zap.Error(err))
			continue
		}
		retried++
	}
	return retried, nil
}
