package models

import (
	"regexp"
	"time"

	"doria/pkg/domainerrors"
)

// MemberType classifies a provider's membership tier.
type MemberType string

const (
	MemberDirect                 MemberType = "direct_member"
	MemberConsortium             MemberType = "consortium"
	MemberConsortiumOrganization MemberType = "consortium_organization"
	MemberOnly                   MemberType = "member_only"
)

var memberTypes = map[MemberType]bool{
	MemberDirect:                 true,
	MemberConsortium:             true,
	MemberConsortiumOrganization: true,
	MemberOnly:                   true,
}

var providerSymbolRe = regexp.MustCompile(`^[A-Z]+$`)

// regionByCountry maps ISO 3166 alpha-2 country codes onto the three member
// regions. Unlisted codes yield an empty region.
var regionByCountry = map[string]string{
	"US": "AMER", "CA": "AMER", "BR": "AMER", "MX": "AMER", "AR": "AMER",
	"CL": "AMER", "CO": "AMER", "PE": "AMER",
	"AU": "APAC", "NZ": "APAC", "JP": "APAC", "CN": "APAC", "KR": "APAC",
	"IN": "APAC", "SG": "APAC", "TW": "APAC", "TH": "APAC", "MY": "APAC",
	"GB": "EMEA", "DE": "EMEA", "FR": "EMEA", "NL": "EMEA", "IT": "EMEA",
	"ES": "EMEA", "SE": "EMEA", "NO": "EMEA", "DK": "EMEA", "FI": "EMEA",
	"CH": "EMEA", "AT": "EMEA", "BE": "EMEA", "PL": "EMEA", "CZ": "EMEA",
	"IE": "EMEA", "PT": "EMEA", "ZA": "EMEA", "IL": "EMEA", "TR": "EMEA",
	"RU": "EMEA", "SA": "EMEA", "AE": "EMEA", "EG": "EMEA", "NG": "EMEA",
	"KE": "EMEA",
}

// Provider is a member organization that owns clients and prefixes.
//
// Invariants:
//   - Symbol is an immutable uppercase letter sequence.
//   - Deletion is soft: DeletedAt is set and the record stays on disk, but a
//     provider with undeleted clients cannot be deleted at all.
type Provider struct {
	Symbol           string     `json:"symbol"`
	Name             string     `json:"name"`
	ContactEmail     string     `json:"contact_email"`
	Website          string     `json:"website,omitempty"`
	CountryCode      string     `json:"country_code,omitempty"`
	MemberType       MemberType `json:"member_type"`
	OrganizationType string     `json:"organization_type,omitempty"`
	FocusArea        string     `json:"focus_area,omitempty"`

	Version   int64      `json:"version"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewProvider(symbol, name, contactEmail string, memberType MemberType, now time.Time) (*Provider, error) {
	if !providerSymbolRe.MatchString(symbol) {
		return nil, domainerrors.New(domainerrors.CodeValidation, "provider symbol is malformed").
			WithFields(domainerrors.FieldError{Field: "symbol", Reason: "must be uppercase letters"})
	}
	if name == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "provider name is required").
			WithFields(domainerrors.FieldError{Field: "name", Reason: "must be present"})
	}
	if memberType == "" {
		memberType = MemberDirect
	}
	if !memberTypes[memberType] {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown member type %q", memberType)
	}
	return &Provider{
		Symbol:       symbol,
		Name:         name,
		ContactEmail: contactEmail,
		MemberType:   memberType,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (p *Provider) IsDeleted() bool { return p.DeletedAt != nil }

// Region derives the member region from the country code.
func (p *Provider) Region() string {
	return regionByCountry[p.CountryCode]
}

// CumulativeYears lists every year the provider has been a member: from the
// creation year up to and including the current year, or up to but excluding
// the deletion year for deleted providers.
func (p *Provider) CumulativeYears(now time.Time) []int {
	start := p.CreatedAt.Year()
	end := now.Year() + 1
	if p.DeletedAt != nil {
		end = p.DeletedAt.Year()
	}
	if end <= start {
		return nil
	}
	years := make([]int, 0, end-start)
	for y := start; y < end; y++ {
		years = append(years, y)
	}
	return years
}

// CanDelete validates the soft-delete transition itself. The active-children
// rule is enforced at the service layer, which can count clients.
func (p *Provider) CanDelete() error {
	if p.IsDeleted() {
		return domainerrors.New(domainerrors.CodeInvariantViolation, "provider is already deleted")
	}
	return nil
}

func (p *Provider) ApplyDelete(now time.Time) {
	p.DeletedAt = &now
	p.UpdatedAt = now
}
