package models

import (
	"regexp"
	"strings"
	"time"

	"doria/pkg/domainerrors"
)

// ClientType classifies what kind of content a repository registers.
type ClientType string

const (
	ClientTypeRepository ClientType = "repository"
	ClientTypePeriodical ClientType = "periodical"
	// ClientTypeRegistrationAgency marks clients mirroring identifiers minted
	// elsewhere; their records stay out of downstream import feeds.
	ClientTypeRegistrationAgency ClientType = "registration_agency"
)

// Client symbols are PROVIDER.REPO with an optional hyphenated suffix.
var clientSymbolRe = regexp.MustCompile(`^[A-Z]+\.[A-Z0-9]+(-[A-Z0-9]+)?$`)

// Client is a repository that registers identifiers under a provider.
//
// Invariants:
//   - Symbol is immutable and prefixed by the owning provider's symbol.
//   - Deletion is soft and rejected while the client still owns identifiers.
type Client struct {
	Symbol       string     `json:"symbol"`
	ProviderID   string     `json:"provider_id"`
	Name         string     `json:"name"`
	ContactEmail string     `json:"contact_email"`
	URL          string     `json:"url,omitempty"`
	Software     string     `json:"software,omitempty"`
	Re3dataID    string     `json:"re3data_id,omitempty"`
	ClientType   ClientType `json:"client_type"`
	IsActive     bool       `json:"is_active"`

	Version   int64      `json:"version"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewClient(symbol, providerSymbol, name, contactEmail string, now time.Time) (*Client, error) {
	symbol = strings.ToUpper(symbol)
	if !clientSymbolRe.MatchString(symbol) {
		return nil, domainerrors.New(domainerrors.CodeValidation, "client symbol is malformed").
			WithFields(domainerrors.FieldError{Field: "symbol", Reason: "must match PROVIDER.REPO"})
	}
	if !strings.HasPrefix(symbol, providerSymbol+".") {
		return nil, domainerrors.New(domainerrors.CodeValidation, "client symbol does not belong to provider").
			WithFields(domainerrors.FieldError{Field: "symbol", Reason: "must start with the provider symbol"})
	}
	if name == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "client name is required").
			WithFields(domainerrors.FieldError{Field: "name", Reason: "must be present"})
	}
	return &Client{
		Symbol:       symbol,
		ProviderID:   providerSymbol,
		Name:         name,
		ContactEmail: contactEmail,
		ClientType:   ClientTypeRepository,
		IsActive:     true,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (c *Client) IsDeleted() bool { return c.DeletedAt != nil }

// IsValid reports whether identifiers may become findable under this client.
func (c *Client) IsValid() bool {
	return c.IsActive && !c.IsDeleted()
}

// UID is the lowercase form used as the index document identifier and in
// identifier ownership references.
func (c *Client) UID() string {
	return strings.ToLower(c.Symbol)
}

func (c *Client) CanDelete() error {
	if c.IsDeleted() {
		return domainerrors.New(domainerrors.CodeInvariantViolation, "client is already deleted")
	}
	return nil
}

func (c *Client) ApplyDelete(now time.Time) {
	c.DeletedAt = &now
	c.IsActive = false
	c.UpdatedAt = now
}

// ApplyTransfer moves the client to a new provider. The symbol keeps its
// historical provider segment; only ownership changes.
func (c *Client) ApplyTransfer(newProviderID string, now time.Time) {
	c.ProviderID = newProviderID
	c.UpdatedAt = now
}
