package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"githubrank/models"
)

const repositoryColumns = `id, full_name, owner, stars, watchers, forks, open_issues,
	language, position_cur, position_prev, created_at, updated_at`

// The WHERE clause turns a repeated identical upsert into a no-op so that
// updated_at only moves when a field actually changed.
const upsertRepositoryQuery = `
	INSERT INTO repositories (
		full_name, owner, stars, watchers, forks, open_issues, language,
		created_at, updated_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (full_name) DO UPDATE SET
		owner = EXCLUDED.owner,
		stars = EXCLUDED.stars,
		watchers = EXCLUDED.watchers,
		forks = EXCLUDED.forks,
		open_issues = EXCLUDED.open_issues,
		language = EXCLUDED.language,
		updated_at = EXCLUDED.updated_at
	WHERE repositories.owner <> EXCLUDED.owner
		OR repositories.stars <> EXCLUDED.stars
		OR repositories.watchers <> EXCLUDED.watchers
		OR repositories.forks <> EXCLUDED.forks
		OR repositories.open_issues <> EXCLUDED.open_issues
		OR repositories.language <> EXCLUDED.language
`

const getByFullNameQuery = `SELECT ` + repositoryColumns + ` FROM repositories WHERE full_name = ?`

// Leaderboard ordering fragments. Only these fixed strings ever reach the
// ORDER BY clause.
var (
	sortColumns = map[models.SortField]string{
		models.SortStars:      "stars",
		models.SortWatchers:   "watchers",
		models.SortForks:      "forks",
		models.SortOpenIssues: "open_issues",
	}
	sortDirections = map[models.SortOrder]string{
		models.OrderAsc:  "ASC",
		models.OrderDesc: "DESC",
	}
)

// UpsertRepository inserts a repository or overwrites its mutable fields.
// Leaderboard positions are never touched here.
func (db *DB) UpsertRepository(ctx context.Context, detail models.RepositoryDetail) (*models.Repository, error) {
	if err := validateDetail(detail); err != nil {
		return nil, err
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	stmt, err := db.getStmt(ctx, upsertRepositoryQuery)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := stmt.ExecContext(ctx,
		detail.FullName, detail.Owner, detail.Stars, detail.Watchers,
		detail.Forks, detail.OpenIssues, detail.Language,
		now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert repository %s: %w", detail.FullName, classify(err))
	}

	db.log.Debug("Repository upserted",
		zap.String("full_name", detail.FullName),
		zap.Int("stars", detail.Stars))

	return db.GetByFullName(ctx, detail.FullName)
}

func validateDetail(d models.RepositoryDetail) error {
	if d.FullName == "" || d.Owner == "" {
		return fmt.Errorf("%w: repository full name and owner cannot be empty", ErrInvalidInput)
	}
	if d.Stars < 0 || d.Watchers < 0 || d.Forks < 0 || d.OpenIssues < 0 {
		return fmt.Errorf("%w: negative counts for %s", ErrInvalidInput, d.FullName)
	}
	if d.Language == "" {
		return fmt.Errorf("%w: empty language for %s", ErrInvalidInput, d.FullName)
	}
	return nil
}

// GetByFullName retrieves a repository by its owner/name key
func (db *DB) GetByFullName(ctx context.Context, fullName string) (*models.Repository, error) {
	if fullName == "" {
		return nil, fmt.Errorf("%w: repository full name cannot be empty", ErrInvalidInput)
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	stmt, err := db.getStmt(ctx, getByFullNameQuery)
	if err != nil {
		return nil, err
	}

	var repo models.Repository
	if err := stmt.GetContext(ctx, &repo, fullName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: repository %s not found", ErrRepositoryNotFound, fullName)
		}
		return nil, fmt.Errorf("failed to get repository %s: %w", fullName, classify(err))
	}
	return &repo, nil
}

// Leaderboard returns the ranked repositories ordered by the requested
// column, ties broken by full name.
func (db *DB) Leaderboard(ctx context.Context, q models.LeaderboardQuery) ([]models.Repository, error) {
	column, ok := sortColumns[q.SortBy]
	if !ok {
		return nil, fmt.Errorf("%w: sort field %q", ErrInvalidQueryParameter, q.SortBy)
	}
	direction, ok := sortDirections[q.Order]
	if !ok {
		return nil, fmt.Errorf("%w: sort order %q", ErrInvalidQueryParameter, q.Order)
	}
	if q.Page < 1 || q.PageSize < 1 {
		return nil, fmt.Errorf("%w: page and page size must be positive", ErrInvalidQueryParameter)
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	query := db.conn.Rebind(`SELECT ` + repositoryColumns + `
		FROM repositories
		WHERE position_cur IS NOT NULL
		ORDER BY ` + column + ` ` + direction + `, full_name ASC
		LIMIT ? OFFSET ?`)

	repos := []models.Repository{}
	if err := db.conn.SelectContext(ctx, &repos, query, q.PageSize, q.Offset()); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", classify(err))
	}
	return repos, nil
}
