package github

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"githubrank/models"
)

type fakeLister struct {
	pages   []*models.RepositoryPage
	errs    map[int]error
	cursors []models.Cursor
}

func (f *fakeLister) ListRepositories(_ context.Context, cursor models.Cursor) (*models.RepositoryPage, error) {
	call := len(f.cursors)
	f.cursors = append(f.cursors, cursor)
	if err := f.errs[call]; err != nil {
		return nil, err
	}
	if call >= len(f.pages) {
		return &models.RepositoryPage{}, nil
	}
	return f.pages[call], nil
}

func pageOf(next string, names ...string) *models.RepositoryPage {
	page := &models.RepositoryPage{}
	for _, n := range names {
		page.Items = append(page.Items, models.Identity{Owner: "o", Name: n})
	}
	if next != "" {
		page.Next = &models.Cursor{Next: next}
	}
	return page
}

func drain(t *testing.T, p *RepositoryPager) []string {
	t.Helper()
	var names []string
	for !p.Done() {
		items, err := p.Next(context.Background())
		if err != nil {
			break
		}
		for _, it := range items {
			names = append(names, it.Name)
		}
	}
	return names
}

func TestRepositoryPagerStopsOnEmptyPage(t *testing.T) {
	lister := &fakeLister{pages: []*models.RepositoryPage{
		pageOf("n1", "a", "b"),
		pageOf("n2", "c"),
		pageOf("n3"),
	}}
	pager := NewRepositoryPager(lister, 7, 0)

	assert.Equal(t, []string{"a", "b", "c"}, drain(t, pager))
	assert.Len(t, lister.cursors, 3)
	assert.Equal(t, 3, pager.Pages())
	assert.Equal(t, models.Cursor{Since: 7}, lister.cursors[0])
	assert.Equal(t, models.Cursor{Next: "n1"}, lister.cursors[1])
	assert.Equal(t, models.Cursor{Next: "n2"}, lister.cursors[2])

	_, err := pager.Next(context.Background())
	assert.ErrorIs(t, err, ErrPagerDone)
}

func TestRepositoryPagerStopsWithoutContinuation(t *testing.T) {
	lister := &fakeLister{pages: []*models.RepositoryPage{
		pageOf("n1", "a"),
		pageOf("", "b"),
		pageOf("n3", "never"),
	}}
	pager := NewRepositoryPager(lister, 0, 0)

	assert.Equal(t, []string{"a", "b"}, drain(t, pager))
	assert.Len(t, lister.cursors, 2)
}

func TestRepositoryPagerHonoursMaxPages(t *testing.T) {
	lister := &fakeLister{pages: []*models.RepositoryPage{
		pageOf("n1", "a"),
		pageOf("n2", "b"),
		pageOf("n3", "c"),
	}}
	pager := NewRepositoryPager(lister, 0, 2)

	assert.Equal(t, []string{"a", "b"}, drain(t, pager))
	assert.Len(t, lister.cursors, 2)
}

func TestRepositoryPagerStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	lister := &fakeLister{
		pages: []*models.RepositoryPage{pageOf("n1", "a"), pageOf("n2", "b")},
		errs:  map[int]error{1: boom},
	}
	pager := NewRepositoryPager(lister, 0, 0)

	items, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = pager.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, pager.Done())
}

type fakeCommitLister struct {
	pages   map[int][]models.Commit
	errs    map[int]error
	queries []models.CommitQuery
}

func (f *fakeCommitLister) ListCommits(_ context.Context, owner, name string, q models.CommitQuery) ([]models.Commit, error) {
	f.queries = append(f.queries, q)
	if err := f.errs[q.Page]; err != nil {
		return nil, err
	}
	return f.pages[q.Page], nil
}

func TestCommitPagerTerminatesOnEmptyPage(t *testing.T) {
	lister := &fakeCommitLister{pages: map[int][]models.Commit{
		1: {{AuthorName: "a"}},
		2: {{AuthorName: "b"}},
	}}
	pager := NewCommitPager(lister, "o", "r", "2024-01-01", "", 0)

	var calls int
	for !pager.Done() {
		_, err := pager.Next(context.Background())
		require.NoError(t, err)
		calls++
	}

	assert.Equal(t, 3, calls)
	require.Len(t, lister.queries, 3)
	for i, q := range lister.queries {
		assert.Equal(t, i+1, q.Page)
		assert.Equal(t, CommitsPerPage, q.PerPage)
		assert.Equal(t, "2024-01-01", q.Since)
		assert.Empty(t, q.Until)
	}
	assert.NoError(t, pager.Err())
}

func TestCommitPagerSkipsFailedPage(t *testing.T) {
	lister := &fakeCommitLister{
		pages: map[int][]models.Commit{1: {{AuthorName: "a"}}, 3: {{AuthorName: "c"}}},
		errs:  map[int]error{2: ErrTransient},
	}
	pager := NewCommitPager(lister, "o", "r", "", "", 0)

	var got []string
	var failures int
	for !pager.Done() {
		commits, err := pager.Next(context.Background())
		if err != nil {
			failures++
			continue
		}
		for _, c := range commits {
			got = append(got, c.AuthorName)
		}
	}

	assert.Equal(t, []string{"a", "c"}, got)
	assert.Equal(t, 1, failures)
	assert.NoError(t, pager.Err())
}

func TestCommitPagerGivesUpAfterConsecutiveFailures(t *testing.T) {
	lister := &fakeCommitLister{errs: map[int]error{1: ErrTransient, 2: ErrRateLimited, 3: ErrTransient}}
	pager := NewCommitPager(lister, "o", "r", "", "", 0)

	for !pager.Done() {
		_, _ = pager.Next(context.Background())
	}

	assert.Equal(t, 3, pager.Pages())
	assert.ErrorIs(t, pager.Err(), ErrTransient)
}

func TestCommitPagerStopsOnNotFound(t *testing.T) {
	lister := &fakeCommitLister{errs: map[int]error{1: ErrNotFound}}
	pager := NewCommitPager(lister, "o", "r", "", "", 0)

	_, err := pager.Next(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, pager.Done())
	assert.ErrorIs(t, pager.Err(), ErrNotFound)
}

func TestCommitPagerHonoursMaxPages(t *testing.T) {
	full := []models.Commit{{AuthorName: "x"}}
	lister := &fakeCommitLister{pages: map[int][]models.Commit{1: full, 2: full, 3: full}}
	pager := NewCommitPager(lister, "o", "r", "", "", 2)

	for !pager.Done() {
		_, _ = pager.Next(context.Background())
	}
	assert.Len(t, lister.queries, 2)
	assert.NoError(t, pager.Err())
	// A short last page means the history ended there anyway.
	assert.False(t, pager.Truncated())
}

func TestCommitPagerLimitReachedOnFailedPage(t *testing.T) {
	lister := &fakeCommitLister{
		pages: map[int][]models.Commit{1: {{AuthorName: "a"}}},
		errs:  map[int]error{2: ErrTransient},
	}
	pager := NewCommitPager(lister, "o", "r", "", "", 2)

	_, err := pager.Next(context.Background())
	require.NoError(t, err)
	_, err = pager.Next(context.Background())
	assert.ErrorIs(t, err, ErrTransient)

	assert.True(t, pager.Done())
	assert.NoError(t, pager.Err())
	assert.True(t, pager.Truncated())
}

func TestCommitPagerTruncatedOnFullLastPage(t *testing.T) {
	full := make([]models.Commit, CommitsPerPage)
	lister := &fakeCommitLister{pages: map[int][]models.Commit{1: full, 2: full}}
	pager := NewCommitPager(lister, "o", "r", "", "", 1)

	_, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, pager.Done())
	assert.True(t, pager.Truncated())
	assert.NoError(t, pager.Err())
}
