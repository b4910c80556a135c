package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"githubrank/db"
	"githubrank/github"
	"githubrank/logger"
	"githubrank/metrics"
	"githubrank/models"
)

// Store defines the database operations needed by the ingester
type Store interface {
	UpsertRepository(ctx context.Context, detail models.RepositoryDetail) (*models.Repository, error)
	RecomputePositions(ctx context.Context, topN int) error
}

// DetailFetcher defines the GitHub client operation needed per repository
type DetailFetcher interface {
	FetchDetail(ctx context.Context, owner, name string) (*models.RepositoryDetail, error)
}

// Options tunes one ingestion cycle
type Options struct {
	Workers  int
	TopN     int
	MaxPages int
	// Since pins the listing offset; zero picks a random one in [1, SinceMax]
	Since    int64
	SinceMax int64
}

// Report summarizes one ingestion cycle
type Report struct {
	RunID    string        `json:"run_id"`
	Since    int64         `json:"since"`
	Pages    int           `json:"pages"`
	Stored   int           `json:"stored"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

type outcome int

const (
	outcomeStored outcome = iota
	outcomeSkipped
	outcomeFailed
)

// Ingester walks the repository listing, stores every detail record it can
// fetch and re-ranks the leaderboard once the pass is over.
type Ingester struct {
	store   Store
	lister  github.RepositoryLister
	details DetailFetcher
	opts    Options
	metrics *metrics.Metrics
	log     *zap.Logger

	randomSince func(max int64) int64
}

// NewIngester wires an ingester. m and log may be nil.
func NewIngester(store Store, lister github.RepositoryLister, details DetailFetcher, opts Options, m *metrics.Metrics, log *zap.Logger) *Ingester {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SinceMax < 1 {
		opts.SinceMax = 1
	}
	return &Ingester{
		store:   store,
		lister:  lister,
		details: details,
		opts:    opts,
		metrics: m,
		log:     logger.OrNop(log),
		randomSince: func(max int64) int64 {
			return rand.Int63n(max) + 1
		},
	}
}

// RunCycle performs one full ingestion pass followed by a single rank
// recompute. An unreachable store ends the cycle with an error; per-item
// failures, store timeouts included, only show up in the report.
func (in *Ingester) RunCycle(ctx context.Context) (report Report, err error) {
	start := time.Now()
	report = Report{RunID: uuid.NewString(), Since: in.opts.Since}
	if report.Since <= 0 {
		report.Since = in.randomSince(in.opts.SinceMax)
	}

	log := in.log.With(zap.String("run_id", report.RunID))
	log.Info("Starting ingestion cycle",
		zap.Int64("since", report.Since),
		zap.Int("max_pages", in.opts.MaxPages),
		zap.Int("workers", in.opts.Workers))

	defer func() {
		report.Duration = time.Since(start)
		in.metrics.Cycle(report.Duration, err)
	}()

	pager := github.NewRepositoryPager(in.lister, report.Since, in.opts.MaxPages)
	for !pager.Done() {
		if err := ctx.Err(); err != nil {
			report.Pages = pager.Pages()
			return report, err
		}

		items, err := pager.Next(ctx)
		report.Pages = pager.Pages()
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			log.Warn("Listing page failed, ending traversal",
				zap.Int("page", pager.Pages()),
				zap.Error(err))
			break
		}
		in.metrics.ListingPage()

		outcomes, err := in.processPage(ctx, log, items)
		for _, o := range outcomes {
			switch o {
			case outcomeStored:
				report.Stored++
			case outcomeSkipped:
				report.Skipped++
			case outcomeFailed:
				report.Failed++
			}
		}
		if err != nil {
			return report, err
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	recomputeStart := time.Now()
	if err := in.store.RecomputePositions(ctx, in.opts.TopN); err != nil {
		return report, fmt.Errorf("failed to recompute positions: %w", err)
	}
	in.metrics.Recompute(time.Since(recomputeStart))

	log.Info("Ingestion cycle finished",
		zap.Int("pages", report.Pages),
		zap.Int("stored", report.Stored),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

// processPage fetches and stores one page of identities with at most
// Workers requests in flight. Every task records its own outcome and
// returns nil, so one failing item never cancels its siblings. Only an
// unreachable store is returned, which cancels the rest of the page.
func (in *Ingester) processPage(ctx context.Context, log *zap.Logger, items []models.Identity) ([]outcome, error) {
	results := make([]outcome, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Workers)

	started := 0
	for i, item := range items {
		// Tasks never started are neither stored nor failed.
		if gctx.Err() != nil {
			break
		}
		started++
		i, item := i, item
		g.Go(func() error {
			o, err := in.processItem(gctx, log, item)
			results[i] = o
			return err
		})
	}

	err := g.Wait()
	outcomes := results[:started]
	if err != nil {
		return outcomes, err
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (in *Ingester) processItem(ctx context.Context, log *zap.Logger, item models.Identity) (outcome, error) {
	detail, err := in.details.FetchDetail(ctx, item.Owner, item.Name)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeFailed, nil
		}
		if github.IsSkippable(err) {
			log.Debug("Skipping repository", zap.Stringer("repo", item), zap.Error(err))
			in.metrics.Item(metrics.OutcomeSkipped)
			return outcomeSkipped, nil
		}
		log.Warn("Failed to fetch repository detail", zap.Stringer("repo", item), zap.Error(err))
		in.metrics.Item(metrics.OutcomeFailed)
		return outcomeFailed, nil
	}

	// A cancelled run never starts new writes.
	if ctx.Err() != nil {
		return outcomeFailed, nil
	}

	if _, err := in.store.UpsertRepository(ctx, *detail); err != nil {
		if errors.Is(err, db.ErrInvalidInput) {
			log.Warn("Rejected repository detail", zap.Stringer("repo", item), zap.Error(err))
			in.metrics.Item(metrics.OutcomeSkipped)
			return outcomeSkipped, nil
		}
		if ctx.Err() != nil {
			return outcomeFailed, nil
		}
		in.metrics.Item(metrics.OutcomeFailed)
		if errors.Is(err, db.ErrDatabaseConnection) {
			log.Error("Store unavailable, aborting cycle", zap.Stringer("repo", item), zap.Error(err))
			return outcomeFailed, fmt.Errorf("failed to store repository %s: %w", item, err)
		}
		// Timeouts and rejected statements only cost this item.
		log.Warn("Failed to store repository", zap.Stringer("repo", item), zap.Error(err))
		return outcomeFailed, nil
	}

	in.metrics.Item(metrics.OutcomeStored)
	return outcomeStored, nil
}
