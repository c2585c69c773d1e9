package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	doimetrics "doria/internal/doi/metrics"
	doistore "doria/internal/doi/store"
	eventstore "doria/internal/event/store"
	"doria/internal/jobs"
	redisplatform "doria/internal/platform/redis"
	registrymodels "doria/internal/registry/models"
	registrystore "doria/internal/registry/store"
	"doria/internal/search"
	"doria/pkg/platform/sentinel"
	"doria/pkg/requestcontext"
)

// HandlerRegistry is the queue side the indexer registers its handlers on.
// Both queue implementations satisfy it.
type HandlerRegistry interface {
	Handle(kind jobs.Kind, h jobs.Handler)
}

// Indexer recomputes index projections from the system of record and writes
// them to the search backend. Sync is asynchronous and idempotent: the
// handler reloads the record at processing time, so stale jobs converge on
// the current state.
type Indexer struct {
	backend   search.Backend
	dois      doistore.Store
	clients   registrystore.Clients
	providers registrystore.Providers
	events    eventstore.Store

	queue    jobs.Queue
	feed     Feed
	cache    *redisplatform.Client
	cacheTTL time.Duration
	metrics  *doimetrics.Metrics
	log      *zap.Logger
}

// Option configures optional indexer collaborators.
type Option func(*Indexer)

// WithCache enables the Redis projection cache.
func WithCache(cache *redisplatform.Client, ttl time.Duration) Option {
	return func(ix *Indexer) {
		ix.cache = cache
		ix.cacheTTL = ttl
	}
}

// WithFeed publishes findable identifier projections to a downstream feed.
func WithFeed(feed Feed) Option {
	return func(ix *Indexer) { ix.feed = feed }
}

func New(backend search.Backend, dois doistore.Store, clients registrystore.Clients,
	providers registrystore.Providers, events eventstore.Store,
	queue jobs.Queue, metrics *doimetrics.Metrics, log *zap.Logger, opts ...Option) *Indexer {
	ix := &Indexer{
		backend:   backend,
		dois:      dois,
		clients:   clients,
		providers: providers,
		events:    events,
		queue:     queue,
		feed:      NopFeed{},
		metrics:   metrics,
		log:       log,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// RegisterHandlers binds the sync job kinds to their handlers.
func (ix *Indexer) RegisterHandlers(reg HandlerRegistry) {
	reg.Handle(jobs.KindDOISyncIndex, ix.syncDOI)
	reg.Handle(jobs.KindClientSyncIndex, ix.syncClient)
	reg.Handle(jobs.KindProviderSyncIndex, ix.syncProvider)
	reg.Handle(jobs.KindEventSyncIndex, ix.syncEvent)
}

// Enqueue schedules an asynchronous projection refresh.
func (ix *Indexer) Enqueue(ctx context.Context, kind jobs.Kind, subject string) error {
	if err := ix.queue.Enqueue(ctx, jobs.NewJob(kind, subject, requestcontext.Now(ctx))); err != nil {
		return err
	}
	ix.metrics.IndexJobsEnqueued.Inc()
	return nil
}

// RemoveNow deletes a projection synchronously. A missing document counts as
// success: the desired state is "not in the index" either way.
func (ix *Indexer) RemoveNow(ctx context.Context, index, id string) error {
	err := ix.backend.Delete(ctx, index, id)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	return nil
}

func (ix *Indexer) syncDOI(ctx context.Context, j jobs.Job) error {
	d, err := ix.dois.Get(ctx, j.Subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		// The record was deleted after the job was enqueued.
		return ix.RemoveNow(ctx, IndexDOIs, j.Subject)
	}
	if err != nil {
		return err
	}
	doc := DOIDocument(d)
	related, err := ix.events.ListByDOI(ctx, d.DOI)
	if err != nil {
		return err
	}
	ApplyUsageRollups(doc, related)
	if err := ix.index(ctx, IndexDOIs, d.DOI, doc, d.UpdatedAt); err != nil {
		return err
	}
	if doc["is_active"] == true && ix.feedEligible(ctx, d.ClientID) {
		if err := ix.feed.Announce(ctx, doc); err != nil {
			// The feed is downstream of the index; its failure never blocks
			// the sync.
			ix.log.Warn("feed announce failed", zap.String("doi", d.DOI), zap.Error(err))
		}
	}
	return nil
}

// feedEligible keeps registration-agency mirrors off the import feed. An
// unresolvable client does not suppress the announcement.
func (ix *Indexer) feedEligible(ctx context.Context, clientID string) bool {
	c, err := ix.clients.Get(ctx, strings.ToUpper(clientID))
	if err != nil {
		return true
	}
	return c.ClientType != registrymodels.ClientTypeRegistrationAgency
}

func (ix *Indexer) syncClient(ctx context.Context, j jobs.Job) error {
	c, err := ix.clients.Get(ctx, j.Subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return ix.RemoveNow(ctx, IndexClients, j.Subject)
	}
	if err != nil {
		return err
	}
	return ix.index(ctx, IndexClients, c.UID(), ClientDocument(c), c.UpdatedAt)
}

func (ix *Indexer) syncProvider(ctx context.Context, j jobs.Job) error {
	p, err := ix.providers.Get(ctx, j.Subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return ix.RemoveNow(ctx, IndexProviders, j.Subject)
	}
	if err != nil {
		return err
	}
	return ix.index(ctx, IndexProviders, p.Symbol, ProviderDocument(p, requestcontext.Now(ctx)), p.UpdatedAt)
}

func (ix *Indexer) syncEvent(ctx context.Context, j jobs.Job) error {
	e, err := ix.events.Get(ctx, j.Subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return ix.RemoveNow(ctx, IndexEvents, j.Subject)
	}
	if err != nil {
		return err
	}
	return ix.index(ctx, IndexEvents, e.UUID, EventDocument(e), e.UpdatedAt)
}

func (ix *Indexer) index(ctx context.Context, index, id string, doc search.Document, updatedAt time.Time) error {
	if err := ix.backend.Index(ctx, index, id, doc); err != nil {
		ix.metrics.IndexSyncFailures.Inc()
		return err
	}
	ix.cacheProjection(ctx, index, id, doc, updatedAt)
	return nil
}

func (ix *Indexer) cacheProjection(ctx context.Context, index, id string, doc search.Document, updatedAt time.Time) {
	if ix.cache == nil {
		return
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return
	}
	key := CacheKey(index, id, updatedAt)
	if err := ix.cache.Set(ctx, key, body, ix.cacheTTL).Err(); err != nil {
		ix.log.Warn("projection cache write failed", zap.String("key", key), zap.Error(err))
	}
}
