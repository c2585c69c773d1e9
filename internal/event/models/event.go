package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"doria/pkg/domainerrors"
)

// State is the processing state of a harvested event.
//
// Transitions: waiting -> working -> done | failed, failed -> waiting
// (retry). Processing is idempotent, so a crashed worker leaves the event in
// working and a sweeper may push it back to waiting.
type State string

const (
	StateWaiting State = "waiting"
	StateWorking State = "working"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Event is one harvested relation between a subject and an object, usually a
// citation or usage report referencing an identifier.
type Event struct {
	UUID           string `json:"uuid"`
	SubjID         string `json:"subj_id"`
	ObjID          string `json:"obj_id"`
	SourceID       string `json:"source_id"`
	SourceToken    string `json:"source_token,omitempty"`
	RelationTypeID string `json:"relation_type_id"`
	Total          int    `json:"total"`

	State State  `json:"state"`
	Error string `json:"error,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func New(subjID, objID, sourceID, relationTypeID string, occurredAt, now time.Time) (*Event, error) {
	var fields []domainerrors.FieldError
	if subjID == "" {
		fields = append(fields, domainerrors.FieldError{Field: "subj_id", Reason: "must be present"})
	}
	if sourceID == "" {
		fields = append(fields, domainerrors.FieldError{Field: "source_id", Reason: "must be present"})
	}
	if relationTypeID == "" {
		fields = append(fields, domainerrors.FieldError{Field: "relation_type_id", Reason: "must be present"})
	}
	if len(fields) > 0 {
		return nil, domainerrors.New(domainerrors.CodeValidation, "event is incomplete").WithFields(fields...)
	}
	if occurredAt.IsZero() {
		occurredAt = now
	}
	return &Event{
		UUID:           uuid.NewString(),
		SubjID:         subjID,
		ObjID:          objID,
		SourceID:       sourceID,
		RelationTypeID: relationTypeID,
		Total:          1,
		State:          StateWaiting,
		OccurredAt:     occurredAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// DOI extracts the bare identifier from a doi.org subject or object URL.
// Returns "" when neither side references an identifier.
func (e *Event) DOI() string {
	for _, raw := range []string{e.SubjID, e.ObjID} {
		for _, host := range []string{"https://doi.org/", "http://doi.org/"} {
			if rest, ok := strings.CutPrefix(raw, host); ok {
				return strings.ToLower(rest)
			}
		}
	}
	return ""
}

// YearMonth formats the occurrence month for faceting.
func (e *Event) YearMonth() string {
	return e.OccurredAt.Format("2006-01")
}

func (e *Event) CanStart() error {
	if e.State != StateWaiting {
		return domainerrors.Newf(domainerrors.CodeInvariantViolation, "cannot start a %s event", e.State)
	}
	return nil
}

func (e *Event) ApplyStart(now time.Time) {
	e.State = StateWorking
	e.UpdatedAt = now
}

func (e *Event) ApplyDone(now time.Time) {
	e.State = StateDone
	e.Error = ""
	e.UpdatedAt = now
}

func (e *Event) ApplyFail(reason string, now time.Time) {
	e.State = StateFailed
	e.Error = reason
	e.UpdatedAt = now
}

// CanRetry checks the failed -> waiting transition.
func (e *Event) CanRetry() error {
	if e.State != StateFailed {
		return domainerrors.Newf(domainerrors.CodeInvariantViolation, "cannot retry a %s event", e.State)
	}
	return nil
}

func (e *Event) ApplyRetry(now time.Time) {
	e.State = StateWaiting
	e.Error = ""
	e.UpdatedAt = now
}
