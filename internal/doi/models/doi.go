package models

import (
	"net/url"
	"time"

	"doria/internal/doi/codec"
	"doria/pkg/domainerrors"
)

// State is the lifecycle state of a DOI.
//
// Transitions: draft -> registered -> findable, draft -> findable, and
// findable -> registered (hide). A record never returns to draft, and destroy
// is legal only while in draft.
type State string

const (
	StateDraft      State = "draft"
	StateRegistered State = "registered"
	StateFindable   State = "findable"
)

// MintPolicy controls how registration success updates the minted timestamp.
type MintPolicy int

const (
	// MintOnce sets MintedAt on the first successful registration only.
	MintOnce MintPolicy = iota
	// MintAlways force-sets MintedAt on every successful registration. Used
	// by secondary identifier kinds whose minted time tracks the latest
	// registration.
	MintAlways
)

// Kind describes an identifier subtype and its minting policy.
type Kind struct {
	Name       string
	MintPolicy MintPolicy
}

// KindDefault is the standard DOI kind.
var KindDefault = Kind{Name: "doi", MintPolicy: MintOnce}

// DOI is the aggregate root for a persistent identifier.
//
// Invariants:
//   - The DOI string is immutable once created and its prefix must reference
//     a Prefix assigned to the owning Client (or its parent Provider).
//   - Version increases monotonically; concurrent writers race on it and the
//     loser is rejected with a version mismatch.
//   - Once a record has left draft it is never physically deleted.
type DOI struct {
	DOI        string `json:"doi"`
	ClientID   string `json:"client_id"`
	ProviderID string `json:"provider_id"`

	URL             string `json:"url"`
	Title           string `json:"title"`
	Publisher       string `json:"publisher"`
	PublicationYear int    `json:"publication_year"`
	ResourceType    string `json:"resource_type"`

	State   State `json:"state"`
	IsValid bool  `json:"is_valid"`
	Kind    Kind  `json:"-"`

	Version      int64      `json:"version"`
	MintedAt     *time.Time `json:"minted_at,omitempty"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	IndexedAt    *time.Time `json:"indexed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// New validates and constructs a draft DOI.
func New(doiString, clientID, providerID, targetURL string, now time.Time) (*DOI, error) {
	doiString = codec.Normalize(doiString)
	if !codec.ValidatePrefix(codec.PrefixOf(doiString)) {
		return nil, domainerrors.New(domainerrors.CodeValidation, "doi is malformed").
			WithFields(domainerrors.FieldError{Field: "doi", Reason: "prefix does not match registrant grammar"})
	}
	if clientID == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "client is required").
			WithFields(domainerrors.FieldError{Field: "client_id", Reason: "must be present"})
	}
	d := &DOI{
		DOI:        doiString,
		ClientID:   clientID,
		ProviderID: providerID,
		URL:        targetURL,
		State:      StateDraft,
		IsValid:    true,
		Kind:       KindDefault,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return d, nil
}

// IsRegisteredOrFindable reports whether the DOI has been registered with the
// handle service.
func (d *DOI) IsRegisteredOrFindable() bool {
	return d.State == StateRegistered || d.State == StateFindable
}

// CanRegister checks the draft -> registered requirements: title, identifier
// and a resolvable URL. The validity flag blocks any transition.
func (d *DOI) CanRegister() error {
	if err := d.checkTransitionable(); err != nil {
		return err
	}
	var fields []domainerrors.FieldError
	if d.Title == "" {
		fields = append(fields, domainerrors.FieldError{Field: "title", Reason: "must be present"})
	}
	if d.DOI == "" {
		fields = append(fields, domainerrors.FieldError{Field: "doi", Reason: "must be present"})
	}
	if !resolvable(d.URL) {
		fields = append(fields, domainerrors.FieldError{Field: "url", Reason: "must be a resolvable http(s) URL"})
	}
	if len(fields) > 0 {
		return domainerrors.New(domainerrors.CodeValidation, "doi cannot be registered").WithFields(fields...)
	}
	return nil
}

// ApplyRegister transitions the DOI to registered. Call CanRegister first.
func (d *DOI) ApplyRegister(now time.Time) {
	d.State = StateRegistered
	d.RegisteredAt = &now
	d.UpdatedAt = now
}

// CanPublish checks the requirements for findable: everything registration
// needs, plus an associated valid client.
func (d *DOI) CanPublish(hasValidClient bool) error {
	if err := d.CanRegister(); err != nil {
		return err
	}
	if !hasValidClient {
		return domainerrors.New(domainerrors.CodeValidation, "doi cannot be made findable").
			WithFields(domainerrors.FieldError{Field: "client_id", Reason: "must reference a valid client"})
	}
	return nil
}

// ApplyPublish transitions the DOI to findable.
func (d *DOI) ApplyPublish(now time.Time) {
	if d.RegisteredAt == nil {
		d.RegisteredAt = &now
	}
	d.State = StateFindable
	d.UpdatedAt = now
}

// CanHide checks the findable -> registered transition.
func (d *DOI) CanHide() error {
	if err := d.checkTransitionable(); err != nil {
		return err
	}
	if d.State != StateFindable {
		return domainerrors.New(domainerrors.CodeInvariantViolation, "only findable dois can be hidden")
	}
	return nil
}

// ApplyHide transitions the DOI back to registered, removing it from public
// search results without touching the handle record.
func (d *DOI) ApplyHide(now time.Time) {
	d.State = StateRegistered
	d.UpdatedAt = now
}

// CanDestroy reports whether the record may be deleted. Delete is only
// permitted while in draft.
func (d *DOI) CanDestroy() error {
	if d.State != StateDraft {
		return domainerrors.New(domainerrors.CodeInvariantViolation, "only draft dois can be deleted")
	}
	return nil
}

// MarkMinted records a successful handle registration per the kind's mint
// policy and always refreshes the resolution timestamp.
func (d *DOI) MarkMinted(now time.Time) {
	if d.MintedAt == nil || d.Kind.MintPolicy == MintAlways {
		d.MintedAt = &now
	}
	d.ResolvedAt = &now
	d.UpdatedAt = now
}

func (d *DOI) checkTransitionable() error {
	if !d.IsValid {
		return domainerrors.New(domainerrors.CodeInvariantViolation, "doi metadata is invalid")
	}
	return nil
}

func resolvable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
