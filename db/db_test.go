package db

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"githubrank/models"
)

// setupTestDB creates a new test database connection with a mock
func setupTestDB(t *testing.T) (*DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	database := newDB(sqlxDB, "sqlmock", nil)

	cleanup := func() {
		database.Close()
	}

	return database, mock, cleanup
}

var repoColumns = []string{
	"id", "full_name", "owner", "stars", "watchers", "forks", "open_issues",
	"language", "position_cur", "position_prev", "created_at", "updated_at",
}

func intPtr(v int) *int { return &v }

func TestUpsertRepository(t *testing.T) {
	created := time.Date(2025, time.June, 6, 3, 40, 24, 0, time.UTC)
	detail := models.RepositoryDetail{
		FullName: "test-owner/test-repo", Owner: "test-owner", Language: "Go",
		Stars: 100, Watchers: 50, Forks: 10, OpenIssues: 5,
	}

	tests := []struct {
		name        string
		detail      models.RepositoryDetail
		mockSetup   func(sqlmock.Sqlmock)
		expected    *models.Repository
		expectedErr error
	}{
		{
			name:   "successful upsert",
			detail: detail,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("INSERT INTO repositories").
					ExpectExec().
					WithArgs("test-owner/test-repo", "test-owner", 100, 50, 10, 5, "Go",
						sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectPrepare("SELECT id, full_name").
					ExpectQuery().
					WithArgs("test-owner/test-repo").
					WillReturnRows(sqlmock.NewRows(repoColumns).AddRow(
						1, "test-owner/test-repo", "test-owner", 100, 50, 10, 5,
						"Go", 3, 4, created, created,
					))
			},
			expected: &models.Repository{
				ID: 1, FullName: "test-owner/test-repo", Owner: "test-owner",
				Stars: 100, Watchers: 50, Forks: 10, OpenIssues: 5, Language: "Go",
				PositionCur: intPtr(3), PositionPrev: intPtr(4),
				CreatedAt: created, UpdatedAt: created,
			},
		},
		{
			name:        "empty full name",
			detail:      models.RepositoryDetail{Owner: "test-owner", Language: "Go"},
			mockSetup:   func(mock sqlmock.Sqlmock) {},
			expectedErr: ErrInvalidInput,
		},
		{
			name: "negative stars",
			detail: models.RepositoryDetail{
				FullName: "a/b", Owner: "a", Language: "Go", Stars: -1,
			},
			mockSetup:   func(mock sqlmock.Sqlmock) {},
			expectedErr: ErrInvalidInput,
		},
		{
			name:   "connection lost",
			detail: detail,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("INSERT INTO repositories").
					ExpectExec().
					WillReturnError(sql.ErrConnDone)
			},
			expectedErr: ErrDatabaseConnection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			tt.mockSetup(mock)

			result, err := db.UpsertRepository(context.Background(), tt.detail)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, result)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetByFullName(t *testing.T) {
	tests := []struct {
		name        string
		fullName    string
		mockSetup   func(sqlmock.Sqlmock)
		expectedErr error
	}{
		{
			name:     "repository not found",
			fullName: "ghost/repo",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("SELECT id, full_name").
					ExpectQuery().
					WithArgs("ghost/repo").
					WillReturnError(sql.ErrNoRows)
			},
			expectedErr: ErrRepositoryNotFound,
		},
		{
			name:        "empty full name",
			fullName:    "",
			mockSetup:   func(mock sqlmock.Sqlmock) {},
			expectedErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			tt.mockSetup(mock)

			result, err := db.GetByFullName(context.Background(), tt.fullName)
			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, result)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLeaderboard(t *testing.T) {
	tests := []struct {
		name        string
		query       models.LeaderboardQuery
		mockSetup   func(sqlmock.Sqlmock)
		expectedLen int
		expectedErr error
	}{
		{
			name: "ordered by forks ascending",
			query: models.LeaderboardQuery{
				SortBy: models.SortForks, Order: models.OrderAsc,
				PaginationParams: models.NewPaginationParams(2, 10),
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				now := time.Now()
				mock.ExpectQuery("WHERE position_cur IS NOT NULL\\s+ORDER BY forks ASC, full_name ASC").
					WithArgs(10, 10).
					WillReturnRows(sqlmock.NewRows(repoColumns).
						AddRow(1, "a/a", "a", 1, 1, 1, 1, "Go", 1, 1, now, now).
						AddRow(2, "b/b", "b", 2, 2, 2, 2, "Go", 2, 2, now, now))
			},
			expectedLen: 2,
		},
		{
			name: "injected sort field is rejected",
			query: models.LeaderboardQuery{
				SortBy: "stars; DROP TABLE repositories", Order: models.OrderDesc,
				PaginationParams: models.NewPaginationParams(1, 10),
			},
			mockSetup:   func(mock sqlmock.Sqlmock) {},
			expectedErr: ErrInvalidQueryParameter,
		},
		{
			name: "unknown order is rejected",
			query: models.LeaderboardQuery{
				SortBy: models.SortStars, Order: "sideways",
				PaginationParams: models.NewPaginationParams(1, 10),
			},
			mockSetup:   func(mock sqlmock.Sqlmock) {},
			expectedErr: ErrInvalidQueryParameter,
		},
		{
			name: "zero page size is rejected",
			query: models.LeaderboardQuery{
				SortBy: models.SortStars, Order: models.OrderDesc,
			},
			mockSetup:   func(mock sqlmock.Sqlmock) {},
			expectedErr: ErrInvalidQueryParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			tt.mockSetup(mock)

			result, err := db.Leaderboard(context.Background(), tt.query)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Len(t, result, tt.expectedLen)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRecomputePositions(t *testing.T) {
	tests := []struct {
		name        string
		topN        int
		mockSetup   func(sqlmock.Sqlmock)
		expectedErr []error
	}{
		{
			name: "successful recompute",
			topN: 2,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT full_name, position_cur").
					WithArgs(2).
					WillReturnRows(sqlmock.NewRows([]string{"full_name", "position_cur"}).
						AddRow("b/b", nil).
						AddRow("a/a", 1))
				mock.ExpectExec("SET position_prev = position_cur, position_cur = NULL").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("SET position_cur = \\?, position_prev = \\?").
					WithArgs(1, 1, "b/b").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("SET position_cur = \\?, position_prev = \\?").
					WithArgs(2, 1, "a/a").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name:        "non-positive top n",
			topN:        0,
			mockSetup:   func(mock sqlmock.Sqlmock) {},
			expectedErr: []error{ErrInvalidInput},
		},
		{
			name: "transaction failure",
			topN: 10,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(sql.ErrConnDone)
			},
			expectedErr: []error{ErrTransactionFailed, ErrDatabaseConnection},
		},
		{
			name: "failed update rolls back",
			topN: 1,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT full_name, position_cur").
					WithArgs(1).
					WillReturnRows(sqlmock.NewRows([]string{"full_name", "position_cur"}).AddRow("a/a", nil))
				mock.ExpectExec("SET position_prev = position_cur, position_cur = NULL").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("SET position_cur = \\?, position_prev = \\?").
					WillReturnError(sql.ErrTxDone)
				mock.ExpectRollback()
			},
			expectedErr: []error{sql.ErrTxDone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			tt.mockSetup(mock)

			err := db.RecomputePositions(context.Background(), tt.topN)
			if len(tt.expectedErr) == 0 {
				assert.NoError(t, err)
			}
			for _, want := range tt.expectedErr {
				assert.ErrorIs(t, err, want)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(sql.ErrConnDone), ErrDatabaseConnection)
	assert.NotErrorIs(t, classify(sql.ErrNoRows), ErrDatabaseConnection)
	assert.NotErrorIs(t, classify(context.Canceled), ErrDatabaseConnection)

	timedOut := classify(fmt.Errorf("exec: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, timedOut, ErrQueryTimeout)
	assert.NotErrorIs(t, timedOut, ErrDatabaseConnection)
}
