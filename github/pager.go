package github

import (
	"context"
	"errors"

	"githubrank/models"
)

// maxConsecutiveFailures ends a commit traversal that keeps failing
const maxConsecutiveFailures = 3

// RepositoryLister returns one page of the repository listing
type RepositoryLister interface {
	ListRepositories(ctx context.Context, cursor models.Cursor) (*models.RepositoryPage, error)
}

// CommitLister returns one page of a repository's commits
type CommitLister interface {
	ListCommits(ctx context.Context, owner, name string, query models.CommitQuery) ([]models.Commit, error)
}

// RepositoryPager walks the repository listing. It stops on an empty page,
// a missing continuation, a failed page or after maxPages pages
// (0 means unbounded).
type RepositoryPager struct {
	lister   RepositoryLister
	cursor   models.Cursor
	maxPages int
	pages    int
	done     bool
}

// NewRepositoryPager starts a traversal after the given repository id
func NewRepositoryPager(lister RepositoryLister, since int64, maxPages int) *RepositoryPager {
	return &RepositoryPager{
		lister:   lister,
		cursor:   models.Cursor{Since: since},
		maxPages: maxPages,
	}
}

// Done reports whether the traversal has finished
func (p *RepositoryPager) Done() bool {
	return p.done
}

// Pages returns the number of pages requested so far
func (p *RepositoryPager) Pages() int {
	return p.pages
}

// Next fetches the next page of identities
func (p *RepositoryPager) Next(ctx context.Context) ([]models.Identity, error) {
	if p.done {
		return nil, ErrPagerDone
	}

	page, err := p.lister.ListRepositories(ctx, p.cursor)
	p.pages++
	if err != nil {
		// Without a page there is no continuation to follow.
		p.done = true
		return nil, err
	}

	if len(page.Items) == 0 || page.Next == nil || (p.maxPages > 0 && p.pages >= p.maxPages) {
		p.done = true
	} else {
		p.cursor = *page.Next
	}
	return page.Items, nil
}

// CommitPager walks one repository's commit history page by page.
// A failed page is skipped; the traversal gives up after
// maxConsecutiveFailures failures in a row or on ErrNotFound. Reaching
// maxPages ends it without error, even when the last page failed.
type CommitPager struct {
	lister    CommitLister
	owner     string
	name      string
	query     models.CommitQuery
	maxPages  int
	pages     int
	failures  int
	done      bool
	truncated bool
	err       error
}

// NewCommitPager creates a pager over owner/name commits. since and until
// are passed through to the lister unmodified.
func NewCommitPager(lister CommitLister, owner, name, since, until string, maxPages int) *CommitPager {
	return &CommitPager{
		lister: lister,
		owner:  owner,
		name:   name,
		query: models.CommitQuery{
			Page:    1,
			PerPage: CommitsPerPage,
			Since:   since,
			Until:   until,
		},
		maxPages: maxPages,
	}
}

// Done reports whether the traversal has finished
func (p *CommitPager) Done() bool {
	return p.done
}

// Pages returns the number of pages requested so far
func (p *CommitPager) Pages() int {
	return p.pages
}

// Err returns the error that ended the traversal, if it was given up
func (p *CommitPager) Err() error {
	return p.err
}

// Truncated reports whether maxPages ended the traversal while more
// history may have been left.
func (p *CommitPager) Truncated() bool {
	return p.truncated
}

// Next fetches the next page of commits
func (p *CommitPager) Next(ctx context.Context) ([]models.Commit, error) {
	if p.done {
		return nil, ErrPagerDone
	}

	commits, err := p.lister.ListCommits(ctx, p.owner, p.name, p.query)
	p.pages++
	p.query.Page++

	if err != nil {
		p.failures++
		switch {
		case errors.Is(err, ErrNotFound), ctx.Err() != nil, p.failures >= maxConsecutiveFailures:
			p.done = true
			p.err = err
		case p.atLimit():
			p.done = true
			p.truncated = true
		}
		return nil, err
	}

	p.failures = 0
	switch {
	case len(commits) == 0:
		p.done = true
	case p.atLimit():
		p.done = true
		p.truncated = len(commits) >= p.query.PerPage
	}
	return commits, nil
}

func (p *CommitPager) atLimit() bool {
	return p.maxPages > 0 && p.pages >= p.maxPages
}
