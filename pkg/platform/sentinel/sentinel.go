package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, queues and index backends
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity or document does not exist
// - ErrConflict: uniqueness or ownership constraint violated
// - ErrVersionMismatch: optimistic lock lost, caller must re-fetch and retry
// - ErrInvalidState: entity in wrong lifecycle state for requested operation
// - ErrUnavailable: backend temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domainerrors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrInvalidState    = errors.New("invalid state")
	ErrUnavailable     = errors.New("unavailable")
)
