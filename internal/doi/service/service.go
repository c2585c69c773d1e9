// Package service orchestrates the identifier lifecycle: draft creation,
// handle registration, state transitions and index synchronization.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"doria/internal/doi/codec"
	"doria/internal/doi/lifecycle"
	doimetrics "doria/internal/doi/metrics"
	"doria/internal/doi/models"
	"doria/internal/doi/store"
	"doria/internal/handle"
	"doria/internal/indexer"
	"doria/internal/jobs"
	registrymodels "doria/internal/registry/models"
	registrystore "doria/internal/registry/store"
	"doria/pkg/domainerrors"
	"doria/pkg/platform/sentinel"
	"doria/pkg/requestcontext"
)

// Service orchestrates identifier operations. State transitions persist
// before the handle call; a failed registration rolls the record back so the
// store never keeps a state the handle system contradicts.
type Service struct {
	dois      store.Store
	clients   registrystore.Clients
	prefixes  registrystore.Prefixes
	registrar handle.Registrar
	indexer   *indexer.Indexer
	queue     jobs.Queue
	metrics   *doimetrics.Metrics
	log       *zap.Logger
}

func New(dois store.Store, clients registrystore.Clients, prefixes registrystore.Prefixes,
	registrar handle.Registrar, ix *indexer.Indexer, queue jobs.Queue,
	metrics *doimetrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		dois:      dois,
		clients:   clients,
		prefixes:  prefixes,
		registrar: registrar,
		indexer:   ix,
		queue:     queue,
		metrics:   metrics,
		log:       log,
	}
}

// RegisterHandlers binds the service's background job kinds.
func (s *Service) RegisterHandlers(reg indexer.HandlerRegistry) {
	reg.Handle(jobs.KindDOIRetryRegistration, s.retryRegistration)
	reg.Handle(jobs.KindDOIUpdateURL, s.updateHandleURL)
}

// CreateInput carries the writable identifier fields. Leave DOI empty to
// have one generated under Prefix.
type CreateInput struct {
	DOI             string
	Prefix          string
	Shoulder        string
	ClientID        string
	URL             string
	Title           string
	Publisher       string
	PublicationYear int
	ResourceType    string
}

// Create validates ownership and stores a new draft. Generated identifiers
// retry on the rare random collision.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.DOI, error) {
	client, err := s.validClient(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}

	doiString := in.DOI
	generated := doiString == ""
	if generated {
		doiString, err = codec.Generate(in.Prefix, in.Shoulder, 0)
		if err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeValidation, "cannot generate identifier")
		}
	}
	if err := s.checkPrefixOwnership(ctx, codec.PrefixOf(codec.Normalize(doiString)), client); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	for attempt := 0; ; attempt++ {
		d, err := models.New(doiString, client.UID(), client.ProviderID, in.URL, now)
		if err != nil {
			return nil, err
		}
		d.Title = in.Title
		d.Publisher = in.Publisher
		d.PublicationYear = in.PublicationYear
		d.ResourceType = in.ResourceType

		err = s.dois.Create(ctx, d)
		if err == nil {
			s.enqueueSync(ctx, d.DOI)
			return d, nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			if generated && attempt < 2 {
				doiString, err = codec.Generate(in.Prefix, in.Shoulder, 0)
				if err != nil {
					return nil, domainerrors.Wrap(err, domainerrors.CodeValidation, "cannot generate identifier")
				}
				continue
			}
			return nil, domainerrors.New(domainerrors.CodeConflict, "doi already exists")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to create doi")
	}
}

func (s *Service) Get(ctx context.Context, doi string) (*models.DOI, error) {
	d, err := s.dois.Get(ctx, codec.Normalize(doi))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "doi not found")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load doi")
	}
	return d, nil
}

// UpdateInput carries the mutable metadata fields. Nil pointers leave the
// field untouched.
type UpdateInput struct {
	URL             *string
	Title           *string
	Publisher       *string
	PublicationYear *int
	ResourceType    *string
}

// Update applies a metadata change. When the target URL of a registered
// identifier changes, the handle record is re-registered in the background.
func (s *Service) Update(ctx context.Context, doi string, in UpdateInput) (*models.DOI, error) {
	d, err := s.Get(ctx, doi)
	if err != nil {
		return nil, err
	}

	urlChanged := false
	if in.URL != nil && *in.URL != d.URL {
		d.URL = *in.URL
		urlChanged = true
	}
	if in.Title != nil {
		d.Title = *in.Title
	}
	if in.Publisher != nil {
		d.Publisher = *in.Publisher
	}
	if in.PublicationYear != nil {
		d.PublicationYear = *in.PublicationYear
	}
	if in.ResourceType != nil {
		d.ResourceType = *in.ResourceType
	}
	d.UpdatedAt = requestcontext.Now(ctx)

	if err := s.dois.Update(ctx, d); err != nil {
		return nil, wrapWriteErr(err)
	}
	if urlChanged && d.IsRegisteredOrFindable() {
		s.enqueueJob(ctx, jobs.KindDOIUpdateURL, d.DOI)
	}
	s.enqueueSync(ctx, d.DOI)
	return d, nil
}

// Transition runs a lifecycle event: validate, persist the new state, then
// execute the implied side effects. A handle failure restores the previous
// snapshot so no partial transition survives.
func (s *Service) Transition(ctx context.Context, doi string, ev lifecycle.Event) (*models.DOI, error) {
	d, err := s.Get(ctx, doi)
	if err != nil {
		return nil, err
	}
	snapshot := *d

	in := lifecycle.Input{}
	if ev == lifecycle.EventPublish {
		client, err := s.clients.Get(ctx, strings.ToUpper(d.ClientID))
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load client")
		}
		in.HasValidClient = err == nil && client.IsValid()
	}

	now := requestcontext.Now(ctx)
	outcome, err := lifecycle.Transition(d, ev, in, now)
	if err != nil {
		return nil, err
	}

	if err := s.dois.Update(ctx, d); err != nil {
		return nil, wrapWriteErr(err)
	}

	for _, cmd := range outcome.Commands {
		switch cmd {
		case lifecycle.CmdRegisterHandle:
			if err := s.registerHandle(ctx, d, now); err != nil {
				s.rollback(ctx, d, snapshot)
				return nil, err
			}
		case lifecycle.CmdSyncIndex:
			s.enqueueSync(ctx, d.DOI)
		}
	}

	s.metrics.Transitions.WithLabelValues(string(outcome.To)).Inc()
	return d, nil
}

// Destroy deletes a draft record and its index projection. Records past
// draft are rejected; they are hidden, never deleted.
func (s *Service) Destroy(ctx context.Context, doi string) error {
	d, err := s.Get(ctx, doi)
	if err != nil {
		return err
	}
	if err := d.CanDestroy(); err != nil {
		return err
	}
	if err := s.dois.Delete(ctx, d.DOI); err != nil {
		return wrapWriteErr(err)
	}
	if err := s.indexer.RemoveNow(ctx, indexer.IndexDOIs, d.DOI); err != nil {
		// The record is gone from the system of record; a lingering
		// projection heals on the next full sync.
		s.metrics.IndexSyncFailures.Inc()
		s.log.Warn("failed to remove index projection", zap.String("doi", d.DOI), zap.Error(err))
	}
	return nil
}

// Transfer moves an identifier to another client.
func (s *Service) Transfer(ctx context.Context, doi, newClientID string) (*models.DOI, error) {
	d, err := s.Get(ctx, doi)
	if err != nil {
		return nil, err
	}
	client, err := s.validClient(ctx, newClientID)
	if err != nil {
		return nil, err
	}
	if client.UID() == d.ClientID {
		return d, nil
	}

	d.ClientID = client.UID()
	d.ProviderID = client.ProviderID
	d.UpdatedAt = requestcontext.Now(ctx)
	if err := s.dois.Update(ctx, d); err != nil {
		return nil, wrapWriteErr(err)
	}
	s.enqueueSync(ctx, d.DOI)
	return d, nil
}

func (s *Service) registerHandle(ctx context.Context, d *models.DOI, now time.Time) error {
	start := time.Now()
	resp, err := s.registrar.Register(ctx, d.DOI, d.URL)
	s.metrics.ObserveRegistration(start)
	if err != nil {
		s.metrics.RegistrationFailures.Inc()
		return domainerrors.Wrap(err, domainerrors.CodeRegistrationFailed, "handle registration failed")
	}
	if !resp.OK() {
		s.metrics.RegistrationFailures.Inc()
		return domainerrors.Newf(domainerrors.CodeRegistrationFailed,
			"handle service returned status %d", resp.Status)
	}
	d.MarkMinted(now)
	if err := s.dois.Update(ctx, d); err != nil {
		return wrapWriteErr(err)
	}
	return nil
}

// rollback restores the pre-transition snapshot after a failed side effect.
// The version check races with concurrent writers; losing that race means
// someone else already moved the record and the rollback is obsolete.
func (s *Service) rollback(ctx context.Context, d *models.DOI, snapshot models.DOI) {
	restored := snapshot
	restored.Version = d.Version
	if err := s.dois.Update(ctx, &restored); err != nil && !errors.Is(err, sentinel.ErrVersionMismatch) {
		s.log.Error("failed to roll back transition",
			zap.String("doi", d.DOI),
			zap.String("state", string(snapshot.State)),
			zap.Error(err))
	}
	*d = restored
}

// retryRegistration re-runs the handle upsert for a registered identifier.
func (s *Service) retryRegistration(ctx context.Context, j jobs.Job) error {
	d, err := s.dois.Get(ctx, j.Subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !d.IsRegisteredOrFindable() {
		return nil
	}
	return s.registerHandle(ctx, d, requestcontext.Now(ctx))
}

// updateHandleURL re-registers the handle after a target URL change. The
// upsert is idempotent, so replays are harmless. A failure falls back to the
// retry job rather than blocking the queue.
func (s *Service) updateHandleURL(ctx context.Context, j jobs.Job) error {
	if err := s.retryRegistration(ctx, j); err != nil {
		s.enqueueJob(ctx, jobs.KindDOIRetryRegistration, j.Subject)
		return err
	}
	return nil
}

func (s *Service) validClient(ctx context.Context, clientID string) (*registrymodels.Client, error) {
	if clientID == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "client is required").
			WithFields(domainerrors.FieldError{Field: "client_id", Reason: "must be present"})
	}
	client, err := s.clients.Get(ctx, strings.ToUpper(clientID))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "client not found")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load client")
	}
	if !client.IsValid() {
		return nil, domainerrors.New(domainerrors.CodeConflict, "client is not active")
	}
	return client, nil
}

// checkPrefixOwnership verifies the identifier's prefix is assigned to the
// owning client or its parent provider.
func (s *Service) checkPrefixOwnership(ctx context.Context, prefix string, client *registrymodels.Client) error {
	p, err := s.prefixes.Get(ctx, prefix)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domainerrors.Newf(domainerrors.CodeValidation, "prefix %s is not registered", prefix)
		}
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load prefix")
	}
	if p.ClientID == client.UID() {
		return nil
	}
	if p.ClientID == "" && p.ProviderID == client.ProviderID {
		return nil
	}
	return domainerrors.Newf(domainerrors.CodeValidation,
		"prefix %s is not assigned to client %s", prefix, client.UID())
}

func (s *Service) enqueueSync(ctx context.Context, doi string) {
	if err := s.indexer.Enqueue(ctx, jobs.KindDOISyncIndex, doi); err != nil {
		s.metrics.IndexSyncFailures.Inc()
		s.log.Warn("failed to enqueue index sync", zap.String("doi", doi), zap.Error(err))
	}
}

func (s *Service) enqueueJob(ctx context.Context, kind jobs.Kind, doi string) {
	job := jobs.NewJob(kind, doi, requestcontext.Now(ctx))
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.log.Warn("failed to enqueue job",
			zap.String("kind", string(kind)),
			zap.String("doi", doi),
			zap.Error(err))
	}
}

func wrapWriteErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return domainerrors.New(domainerrors.CodeNotFound, "doi not found")
	case errors.Is(err, sentinel.ErrVersionMismatch):
		return domainerrors.New(domainerrors.CodeConflict, "doi was modified concurrently")
	default:
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to update doi")
	}
}
