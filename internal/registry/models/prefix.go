package models

import (
	"regexp"
	"time"

	"doria/pkg/domainerrors"
)

var prefixRe = regexp.MustCompile(`^10\.\d{4,5}$`)

// Prefix is a registrant namespace. It is assigned first to a provider and
// then, within that provider, to a single client.
//
// Invariants:
//   - UID matches the registrant grammar 10.NNNN(N).
//   - A prefix can only be assigned to a client of the provider that holds it.
//   - A client assignment is immutable while identifiers exist under the
//     prefix; the service layer enforces the identifier count.
type Prefix struct {
	UID        string    `json:"uid"`
	ProviderID string    `json:"provider_id,omitempty"`
	ClientID   string    `json:"client_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewPrefix(uid string, now time.Time) (*Prefix, error) {
	if !prefixRe.MatchString(uid) {
		return nil, domainerrors.New(domainerrors.CodeValidation, "prefix is malformed").
			WithFields(domainerrors.FieldError{Field: "uid", Reason: "must match 10.NNNN"})
	}
	return &Prefix{UID: uid, CreatedAt: now, UpdatedAt: now}, nil
}

func (p *Prefix) IsAssignedToClient() bool { return p.ClientID != "" }

// CanAssignProvider checks a provider-level assignment. Reassigning between
// providers requires releasing the client assignment first.
func (p *Prefix) CanAssignProvider(providerID string) error {
	if p.ProviderID != "" && p.ProviderID != providerID && p.IsAssignedToClient() {
		return domainerrors.New(domainerrors.CodeConflict, "prefix is in use by a client of another provider")
	}
	return nil
}

func (p *Prefix) ApplyAssignProvider(providerID string, now time.Time) {
	p.ProviderID = providerID
	p.UpdatedAt = now
}

// CanAssignClient checks a client-level assignment within the holding
// provider.
func (p *Prefix) CanAssignClient(c *Client) error {
	if p.ProviderID == "" {
		return domainerrors.New(domainerrors.CodeInvariantViolation, "prefix is not held by a provider")
	}
	if p.ProviderID != c.ProviderID {
		return domainerrors.New(domainerrors.CodeConflict, "prefix belongs to a different provider")
	}
	if p.IsAssignedToClient() && p.ClientID != c.UID() {
		return domainerrors.New(domainerrors.CodeConflict, "prefix is already assigned to another client")
	}
	return nil
}

func (p *Prefix) ApplyAssignClient(clientID string, now time.Time) {
	p.ClientID = clientID
	p.UpdatedAt = now
}

func (p *Prefix) ApplyRelease(now time.Time) {
	p.ClientID = ""
	p.UpdatedAt = now
}
