package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"githubrank/activity"
	"githubrank/config"
	"githubrank/db"
	"githubrank/fetcher"
	"githubrank/github"
	"githubrank/logger"
	"githubrank/metrics"
	"githubrank/models"
)

// Store abstracts the database operations needed by the service
// (for testability)
type Store interface {
	fetcher.Store
	Leaderboard(ctx context.Context, q models.LeaderboardQuery) ([]models.Repository, error)
	GetByFullName(ctx context.Context, fullName string) (*models.Repository, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Ingester runs one ingestion cycle
type Ingester interface {
	RunCycle(ctx context.Context) (fetcher.Report, error)
}

// ActivityReader aggregates commit activity on demand
type ActivityReader interface {
	GetActivity(ctx context.Context, owner, name, since, until string) ([]models.ActivityDay, error)
}

// Service errors
var (
	ErrServiceInit     = fmt.Errorf("service initialization error")
	ErrServiceShutdown = fmt.Errorf("service shutdown error")
)

// Service represents the main application service
type Service struct {
	config   *config.Config
	store    Store
	ingester Ingester
	activity ActivityReader
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	log      *zap.Logger

	interval time.Duration
	// Held for the duration of a cycle so cycles never overlap
	cycleMu sync.Mutex
}

// NewService connects to the store and wires the GitHub client, ingester,
// aggregator and metrics
func NewService(cfg *config.Config, log *zap.Logger) (*Service, error) {
	log = logger.OrNop(log)

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	database, err := db.New(connectCtx, cfg, log.Named("db"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize database: %w", ErrServiceInit, err)
	}

	client, err := github.NewClient(github.ClientConfig{
		Token:      cfg.GitHubToken,
		BaseURL:    cfg.GitHubAPIURL,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
		MaxBackoff: cfg.MaxBackoff,
	}, log.Named("github"))
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("%w: failed to initialize GitHub client: %w", ErrServiceInit, err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	ingester := fetcher.NewIngester(database, client, client, fetcher.Options{
		Workers:  cfg.FetchWorkers,
		TopN:     cfg.TopN,
		MaxPages: cfg.MaxPages,
		Since:    cfg.ListingSince,
		SinceMax: cfg.ListingSinceMax,
	}, m, log.Named("fetcher"))
	aggregator := activity.NewAggregator(client, cfg.MaxCommitPages, log.Named("activity"))

	log.Info("Service initialized successfully",
		zap.String("store_driver", cfg.StoreDriver),
		zap.Int("top_n", cfg.TopN),
		zap.Int("fetch_workers", cfg.FetchWorkers),
		zap.Int("ingest_interval", cfg.IngestInterval))

	return newService(cfg, database, ingester, aggregator, registry, m, log), nil
}

func newService(cfg *config.Config, store Store, ingester Ingester, reader ActivityReader, registry *prometheus.Registry, m *metrics.Metrics, log *zap.Logger) *Service {
	interval := time.Duration(cfg.IngestInterval) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		config:   cfg,
		store:    store,
		ingester: ingester,
		activity: reader,
		registry: registry,
		metrics:  m,
		log:      logger.OrNop(log),
		interval: interval,
	}
}

// Migrate creates the store schema
func (s *Service) Migrate(ctx context.Context) error {
	return s.store.Migrate(ctx)
}

// RunOnce runs a single ingestion cycle
func (s *Service) RunOnce(ctx context.Context) (fetcher.Report, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	if ctx.Err() != nil {
		return fetcher.Report{}, fmt.Errorf("service context cancelled: %w", ctx.Err())
	}
	return s.ingester.RunCycle(ctx)
}

// StartScheduler runs a cycle right away and then one per interval until
// ctx is done. A failed cycle is logged and the schedule goes on.
func (s *Service) StartScheduler(ctx context.Context) {
	s.log.Info("Starting ingestion scheduler", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runScheduled(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("Stopping ingestion scheduler")
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) runScheduled(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("Ingestion cycle failed",
			zap.String("run_id", report.RunID),
			zap.Error(err))
		return
	}
	s.log.Info("Ingestion cycle completed",
		zap.String("run_id", report.RunID),
		zap.Int("stored", report.Stored),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
}

// Leaderboard returns ranked repositories
func (s *Service) Leaderboard(ctx context.Context, q models.LeaderboardQuery) ([]models.Repository, error) {
	return s.store.Leaderboard(ctx, q)
}

// Repository returns one stored repository by owner/name
func (s *Service) Repository(ctx context.Context, fullName string) (*models.Repository, error) {
	return s.store.GetByFullName(ctx, fullName)
}

// GetActivity aggregates the commit activity of owner/name
func (s *Service) GetActivity(ctx context.Context, owner, name, since, until string) ([]models.ActivityDay, error) {
	return s.activity.GetActivity(ctx, owner, name, since, until)
}

// Ping checks the store
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Gatherer exposes the service metrics registry
func (s *Service) Gatherer() prometheus.Gatherer {
	if s.registry == nil {
		return nil
	}
	return s.registry
}

// Metrics returns the service collectors
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Close performs cleanup operations
func (s *Service) Close() error {
	s.log.Info("Closing service")
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("%w: failed to close database: %w", ErrServiceShutdown, err)
	}
	return nil
}
