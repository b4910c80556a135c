// Package activity turns a repository's commit history into per-day
// commit counts and author sets.
package activity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"githubrank/github"
	"githubrank/logger"
	"githubrank/models"
)

// ErrActivityUnavailable means the commit history could not be read
// because too many consecutive pages failed.
var ErrActivityUnavailable = errors.New("activity unavailable")

const dateLayout = "2006-01-02"

// Aggregator computes commit activity on demand
type Aggregator struct {
	commits  github.CommitLister
	maxPages int
	log      *zap.Logger
}

// NewAggregator creates an aggregator reading at most maxPages commit
// pages per request (0 means unbounded)
func NewAggregator(commits github.CommitLister, maxPages int, log *zap.Logger) *Aggregator {
	return &Aggregator{
		commits:  commits,
		maxPages: maxPages,
		log:      logger.OrNop(log),
	}
}

type day struct {
	commits int
	authors map[string]struct{}
}

// GetActivity returns the commit activity of owner/name grouped by the
// calendar date of each author timestamp, in the timestamp's own offset.
// since and until are handed to the API as given.
func (a *Aggregator) GetActivity(ctx context.Context, owner, name, since, until string) ([]models.ActivityDay, error) {
	pager := github.NewCommitPager(a.commits, owner, name, since, until, a.maxPages)
	days := make(map[string]*day)

	for !pager.Done() {
		commits, err := pager.Next(ctx)
		if err != nil {
			if errors.Is(err, github.ErrNotFound) {
				return nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			a.log.Warn("Skipping commit page",
				zap.String("owner", owner),
				zap.String("repo", name),
				zap.Int("page", pager.Pages()),
				zap.Error(err))
			continue
		}

		for _, c := range commits {
			key := c.AuthorDate.Format(dateLayout)
			d, ok := days[key]
			if !ok {
				d = &day{authors: make(map[string]struct{})}
				days[key] = d
			}
			d.commits++
			d.authors[c.AuthorName] = struct{}{}
		}
	}

	if err := pager.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrActivityUnavailable, owner, name, err)
	}
	if pager.Truncated() {
		a.log.Warn("Commit history cut at page limit",
			zap.String("owner", owner),
			zap.String("repo", name),
			zap.Int("max_pages", a.maxPages))
	}

	out := make([]models.ActivityDay, 0, len(days))
	for date, d := range days {
		authors := make([]string, 0, len(d.authors))
		for author := range d.authors {
			authors = append(authors, author)
		}
		sort.Strings(authors)
		out = append(out, models.ActivityDay{Date: date, Commits: d.commits, Authors: authors})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	a.log.Debug("Activity aggregated",
		zap.String("owner", owner),
		zap.String("repo", name),
		zap.Int("pages", pager.Pages()),
		zap.Int("days", len(out)))
	return out, nil
}
