// Package lifecycle holds the pure DOI state-transition logic.
//
// Transition decides whether an event is legal and which side effects it
// implies, but performs no I/O. The service layer persists the mutated record
// and executes the returned commands, so transition rules stay testable
// without stores, handle clients or queues.
package lifecycle

import (
	"time"

	"doria/internal/doi/models"
	"doria/pkg/domainerrors"
)

// Event names a requested lifecycle transition.
type Event string

const (
	// EventRegister moves draft -> registered and registers the handle.
	EventRegister Event = "register"
	// EventPublish moves draft/registered -> findable.
	EventPublish Event = "publish"
	// EventHide moves findable -> registered.
	EventHide Event = "hide"
)

// Command is a side effect the orchestrator must execute after persisting a
// transition.
type Command string

const (
	// CmdRegisterHandle upserts the handle resolution record synchronously.
	CmdRegisterHandle Command = "register_handle"
	// CmdSyncIndex enqueues an asynchronous index projection refresh.
	CmdSyncIndex Command = "sync_index"
)

// Outcome describes an accepted transition.
type Outcome struct {
	From     models.State
	To       models.State
	Commands []Command
}

// Input carries facts the transition needs but the record does not hold.
type Input struct {
	// HasValidClient reports whether the owning client exists and is active.
	// Required for findable.
	HasValidClient bool
}

// Transition validates ev against d and, when legal, mutates d and returns
// the side-effect commands. On error d is left untouched.
func Transition(d *models.DOI, ev Event, in Input, now time.Time) (Outcome, error) {
	from := d.State
	switch ev {
	case EventRegister:
		if from != models.StateDraft {
			return Outcome{}, domainerrors.Newf(domainerrors.CodeInvariantViolation,
				"cannot register a %s doi", from)
		}
		if err := d.CanRegister(); err != nil {
			return Outcome{}, err
		}
		d.ApplyRegister(now)
		return Outcome{From: from, To: d.State, Commands: []Command{CmdRegisterHandle, CmdSyncIndex}}, nil

	case EventPublish:
		if from == models.StateFindable {
			return Outcome{}, domainerrors.New(domainerrors.CodeInvariantViolation,
				"doi is already findable")
		}
		if err := d.CanPublish(in.HasValidClient); err != nil {
			return Outcome{}, err
		}
		d.ApplyPublish(now)
		return Outcome{From: from, To: d.State, Commands: []Command{CmdRegisterHandle, CmdSyncIndex}}, nil

	case EventHide:
		if err := d.CanHide(); err != nil {
			return Outcome{}, err
		}
		d.ApplyHide(now)
		// The handle record keeps resolving; only the index changes.
		return Outcome{From: from, To: d.State, Commands: []Command{CmdSyncIndex}}, nil

	default:
		return Outcome{}, domainerrors.Newf(domainerrors.CodeBadRequest, "unknown lifecycle event %q", ev)
	}
}
