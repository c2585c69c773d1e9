package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	doimetrics "doria/internal/doi/metrics"
	doiservice "doria/internal/doi/service"
	doistore "doria/internal/doi/store"
	eventservice "doria/internal/event/service"
	eventstore "doria/internal/event/store"
	"doria/internal/handle"
	httpapi "doria/internal/http"
	"doria/internal/indexer"
	"doria/internal/jobs"
	"doria/internal/platform/config"
	"doria/internal/platform/httpserver"
	"doria/internal/platform/logger"
	redisplatform "doria/internal/platform/redis"
	registryservice "doria/internal/registry/service"
	registrystore "doria/internal/registry/store"
	"doria/internal/search"
)

// jobQueue is what main needs from either queue implementation: enqueue,
// handler registration and the consumer loop.
type jobQueue interface {
	jobs.Queue
	Handle(kind jobs.Kind, h jobs.Handler)
	Run(ctx context.Context) error
}

func main() {
	cfg := config.FromEnv()
	log, err := logger.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

// run wires the dependency graph and blocks until shutdown. Business logic
// lives in the internal services; main only chooses implementations from
// config.
func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := doimetrics.New()

	var (
		dois      doistore.Store
		providers registrystore.Providers
		clients   registrystore.Clients
		prefixes  registrystore.Prefixes
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		dois = doistore.NewPostgres(db)
		providers = registrystore.NewPostgresProviders(db)
		clients = registrystore.NewPostgresClients(db)
		prefixes = registrystore.NewPostgresPrefixes(db)
	} else {
		log.Info("no postgres dsn configured, using in-memory stores")
		dois = doistore.NewInMemory()
		providers = registrystore.NewMemoryProviders()
		clients = registrystore.NewMemoryClients()
		prefixes = registrystore.NewMemoryPrefixes()
	}
	events := eventstore.NewInMemory()

	var (
		queue   jobQueue
		workers = cfg.IndexWorkers
	)
	if len(cfg.KafkaBrokers) > 0 {
		kq, err := jobs.NewKafka(cfg.KafkaBrokers, cfg.JobsTopic, "doria-workers", log)
		if err != nil {
			return err
		}
		queue = kq
		// One consumer loop per process; partitions provide the parallelism.
		workers = 1
	} else {
		log.Info("no kafka brokers configured, using in-process job queue")
		queue = jobs.NewMemory(256, log)
	}
	defer func() { _ = queue.Close() }()

	ixOpts := []indexer.Option{}
	cache, err := redisplatform.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if cache != nil {
		defer cache.Close()
		ixOpts = append(ixOpts, indexer.WithCache(cache, config.ProjectionCacheTTL))
	}
	if cfg.SQSQueue != "" && !cfg.Deterministic {
		feed, err := indexer.NewSQSFeed(cfg.SQSQueue)
		if err != nil {
			return fmt.Errorf("connect sqs: %w", err)
		}
		ixOpts = append(ixOpts, indexer.WithFeed(feed))
	}

	backend := search.NewInMemory()
	ix := indexer.New(backend, dois, clients, providers, events, queue, metrics, log, ixOpts...)
	ix.RegisterHandlers(queue)

	registrar := handle.New(cfg.HandleURL,
		handle.Credentials{Username: cfg.HandleUsername, Password: cfg.HandlePassword},
		cfg.SandboxPrefix, cfg.HandleTimeout, log,
		handle.WithAlerter(handle.LogAlerter{Log: log}))

	doiSvc := doiservice.New(dois, clients, prefixes, registrar, ix, queue, metrics, log)
	doiSvc.RegisterHandlers(queue)
	regSvc := registryservice.New(providers, clients, prefixes, dois, queue, log)
	eventSvc := eventservice.New(events, queue, log)

	builderOpts := []search.BuilderOption{}
	if cfg.Deterministic {
		builderOpts = append(builderOpts, search.Deterministic())
	}
	searcher := search.NewBuilder(backend, log, builderOpts...)

	router := httpapi.NewRouter(httpapi.NewHandler(doiSvc, regSvc, eventSvc, searcher, log))
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return indexer.RunPool(gctx, queue, workers)
	})
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := eventSvc.ProcessBatch(gctx, 100); err != nil {
					log.Warn("event processing failed", zap.Error(err))
				}
				if _, err := eventSvc.Retry(gctx, 100); err != nil {
					log.Warn("event retry failed", zap.Error(err))
				}
			}
		}
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		// Closing the queue ends the worker loops.
		return queue.Close()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}
