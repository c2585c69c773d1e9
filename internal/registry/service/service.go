// Package service orchestrates registry entity lifecycles: providers,
// clients and prefix assignments.
package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"doria/internal/jobs"
	"doria/internal/registry/models"
	"doria/internal/registry/store"
	"doria/pkg/domainerrors"
	"doria/pkg/platform/sentinel"
	"doria/pkg/requestcontext"
)

// IdentifierCounts exposes how many identifiers a client owns. The identifier
// store satisfies it; services use it to enforce deletion and prefix rules.
type IdentifierCounts interface {
	CountByClient(ctx context.Context, clientID string) (int, error)
}

// Service orchestrates provider, client and prefix operations.
type Service struct {
	providers store.Providers
	clients   store.Clients
	prefixes  store.Prefixes
	counts    IdentifierCounts
	queue     jobs.Queue
	log       *zap.Logger
}

func New(providers store.Providers, clients store.Clients, prefixes store.Prefixes,
	counts IdentifierCounts, queue jobs.Queue, log *zap.Logger) *Service {
	return &Service{
		providers: providers,
		clients:   clients,
		prefixes:  prefixes,
		counts:    counts,
		queue:     queue,
		log:       log,
	}
}

// ProviderInput carries the writable provider fields.
type ProviderInput struct {
	Symbol           string
	Name             string
	ContactEmail     string
	Website          string
	CountryCode      string
	MemberType       models.MemberType
	OrganizationType string
	FocusArea        string
}

func (s *Service) CreateProvider(ctx context.Context, in ProviderInput) (*models.Provider, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	p, err := models.NewProvider(symbol, in.Name, in.ContactEmail, in.MemberType, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	p.Website = in.Website
	p.CountryCode = strings.ToUpper(in.CountryCode)
	p.OrganizationType = in.OrganizationType
	p.FocusArea = in.FocusArea

	if err := s.providers.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domainerrors.New(domainerrors.CodeConflict, "provider symbol already exists")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to create provider")
	}
	s.enqueueSync(ctx, jobs.KindProviderSyncIndex, p.Symbol)
	return p, nil
}

func (s *Service) GetProvider(ctx context.Context, symbol string) (*models.Provider, error) {
	p, err := s.providers.Get(ctx, strings.ToUpper(symbol))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "provider not found")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load provider")
	}
	return p, nil
}

// DeleteProvider soft-deletes a provider. It is rejected while the provider
// still has undeleted clients.
func (s *Service) DeleteProvider(ctx context.Context, symbol string) (*models.Provider, error) {
	p, err := s.GetProvider(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := p.CanDelete(); err != nil {
		return nil, err
	}
	active, err := s.clients.CountActiveByProvider(ctx, p.Symbol)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to count clients")
	}
	if active > 0 {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"provider has %d active clients and cannot be deleted", active)
	}

	p.ApplyDelete(requestcontext.Now(ctx))
	if err := s.providers.Update(ctx, p); err != nil {
		return nil, wrapWriteErr(err, "provider")
	}
	s.enqueueSync(ctx, jobs.KindProviderSyncIndex, p.Symbol)
	return p, nil
}

// ClientInput carries the writable client fields.
type ClientInput struct {
	Symbol       string
	ProviderID   string
	Name         string
	ContactEmail string
	URL          string
	Software     string
	Re3dataID    string
	ClientType   models.ClientType
}

func (s *Service) CreateClient(ctx context.Context, in ClientInput) (*models.Client, error) {
	provider, err := s.GetProvider(ctx, in.ProviderID)
	if err != nil {
		return nil, err
	}
	if provider.IsDeleted() {
		return nil, domainerrors.New(domainerrors.CodeConflict, "provider is deleted")
	}

	c, err := models.NewClient(in.Symbol, provider.Symbol, in.Name, in.ContactEmail, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	c.URL = in.URL
	c.Software = in.Software
	c.Re3dataID = in.Re3dataID
	if in.ClientType != "" {
		c.ClientType = in.ClientType
	}

	if err := s.clients.Create(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domainerrors.New(domainerrors.CodeConflict, "client symbol already exists")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to create client")
	}
	s.enqueueSync(ctx, jobs.KindClientSyncIndex, c.Symbol)
	return c, nil
}

func (s *Service) GetClient(ctx context.Context, symbol string) (*models.Client, error) {
	c, err := s.clients.Get(ctx, strings.ToUpper(symbol))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "client not found")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load client")
	}
	return c, nil
}

// DeleteClient soft-deletes a client. It is rejected while the client still
// owns identifiers.
func (s *Service) DeleteClient(ctx context.Context, symbol string) (*models.Client, error) {
	c, err := s.GetClient(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := c.CanDelete(); err != nil {
		return nil, err
	}
	owned, err := s.counts.CountByClient(ctx, c.UID())
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to count identifiers")
	}
	if owned > 0 {
		return nil, domainerrors.Newf(domainerrors.CodeConflict,
			"client owns %d identifiers and cannot be deleted", owned)
	}

	c.ApplyDelete(requestcontext.Now(ctx))
	if err := s.clients.Update(ctx, c); err != nil {
		return nil, wrapWriteErr(err, "client")
	}
	s.enqueueSync(ctx, jobs.KindClientSyncIndex, c.Symbol)
	return c, nil
}

// TransferClient moves a client and its prefix holdings to another provider.
// The client keeps its historical symbol.
func (s *Service) TransferClient(ctx context.Context, symbol, newProviderID string) (*models.Client, error) {
	c, err := s.GetClient(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted() {
		return nil, domainerrors.New(domainerrors.CodeConflict, "client is deleted")
	}
	target, err := s.GetProvider(ctx, newProviderID)
	if err != nil {
		return nil, err
	}
	if target.IsDeleted() {
		return nil, domainerrors.New(domainerrors.CodeConflict, "target provider is deleted")
	}
	if target.Symbol == c.ProviderID {
		return c, nil
	}

	now := requestcontext.Now(ctx)
	c.ApplyTransfer(target.Symbol, now)
	if err := s.clients.Update(ctx, c); err != nil {
		return nil, wrapWriteErr(err, "client")
	}

	held, err := s.prefixes.ListByClient(ctx, c.UID())
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to list prefixes")
	}
	for _, p := range held {
		p.ApplyAssignProvider(target.Symbol, now)
		if err := s.prefixes.Update(ctx, p); err != nil {
			return nil, wrapWriteErr(err, "prefix")
		}
	}

	s.enqueueSync(ctx, jobs.KindClientSyncIndex, c.Symbol)
	return c, nil
}

func (s *Service) CreatePrefix(ctx context.Context, uid string) (*models.Prefix, error) {
	p, err := models.NewPrefix(uid, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.prefixes.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domainerrors.New(domainerrors.CodeConflict, "prefix already exists")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to create prefix")
	}
	return p, nil
}

func (s *Service) AssignPrefixToProvider(ctx context.Context, uid, providerSymbol string) (*models.Prefix, error) {
	p, err := s.getPrefix(ctx, uid)
	if err != nil {
		return nil, err
	}
	provider, err := s.GetProvider(ctx, providerSymbol)
	if err != nil {
		return nil, err
	}
	if err := p.CanAssignProvider(provider.Symbol); err != nil {
		return nil, err
	}
	p.ApplyAssignProvider(provider.Symbol, requestcontext.Now(ctx))
	if err := s.prefixes.Update(ctx, p); err != nil {
		return nil, wrapWriteErr(err, "prefix")
	}
	return p, nil
}

func (s *Service) AssignPrefixToClient(ctx context.Context, uid, clientSymbol string) (*models.Prefix, error) {
	p, err := s.getPrefix(ctx, uid)
	if err != nil {
		return nil, err
	}
	c, err := s.GetClient(ctx, clientSymbol)
	if err != nil {
		return nil, err
	}
	if err := p.CanAssignClient(c); err != nil {
		return nil, err
	}
	p.ApplyAssignClient(c.UID(), requestcontext.Now(ctx))
	if err := s.prefixes.Update(ctx, p); err != nil {
		return nil, wrapWriteErr(err, "prefix")
	}
	return p, nil
}

// ReleasePrefix removes a prefix's client assignment. It is rejected while
// the assigned client still owns identifiers, keeping assignments immutable
// for prefixes in active use.
func (s *Service) ReleasePrefix(ctx context.Context, uid string) (*models.Prefix, error) {
	p, err := s.getPrefix(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !p.IsAssignedToClient() {
		return p, nil
	}
	owned, err := s.counts.CountByClient(ctx, p.ClientID)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to count identifiers")
	}
	if owned > 0 {
		return nil, domainerrors.New(domainerrors.CodeConflict,
			"prefix is in use and its assignment cannot change")
	}
	p.ApplyRelease(requestcontext.Now(ctx))
	if err := s.prefixes.Update(ctx, p); err != nil {
		return nil, wrapWriteErr(err, "prefix")
	}
	return p, nil
}

func (s *Service) getPrefix(ctx context.Context, uid string) (*models.Prefix, error) {
	p, err := s.prefixes.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "prefix not found")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load prefix")
	}
	return p, nil
}

func (s *Service) enqueueSync(ctx context.Context, kind jobs.Kind, subject string) {
	if s.queue == nil {
		return
	}
	job := jobs.NewJob(kind, subject, requestcontext.Now(ctx))
	if err := s.queue.Enqueue(ctx, job); err != nil {
		// Index refresh is best effort; the system of record already holds
		// the change.
		s.log.Warn("failed to enqueue index sync",
			zap.String("kind", string(kind)),
			zap.String("subject", subject),
			zap.Error(err))
	}
}

func wrapWriteErr(err error, entity string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return domainerrors.Newf(domainerrors.CodeNotFound, "%s not found", entity)
	case errors.Is(err, sentinel.ErrVersionMismatch):
		return domainerrors.Newf(domainerrors.CodeConflict, "%s was modified concurrently", entity)
	default:
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to update "+entity)
	}
}
