// Package models defines the core data structures used throughout the application.
package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLanguage is stored when the API reports no primary language.
const DefaultLanguage = "Undefined"

// Repository represents a stored GitHub repository and its leaderboard position
type Repository struct {
	ID           int       `db:"id" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	Owner        string    `db:"owner" json:"owner"`
	Stars        int       `db:"stars" json:"stars"`
	Watchers     int       `db:"watchers" json:"watchers"`
	Forks        int       `db:"forks" json:"forks"`
	OpenIssues   int       `db:"open_issues" json:"open_issues"`
	Language     string    `db:"language" json:"language"`
	PositionCur  *int      `db:"position_cur" json:"position_cur"`
	PositionPrev *int      `db:"position_prev" json:"position_prev"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
	UpdatedAt    time.Time `db:"updated_at" json:"-"`
}

// RepositoryDetail is the normalized detail record for one repository.
// It carries exactly the fields an upsert is allowed to overwrite.
type RepositoryDetail struct {
	FullName   string
	Owner      string
	Stars      int
	Watchers   int
	Forks      int
	OpenIssues int
	Language   string
}

// Identity is an (owner, name) pair discovered in the repository listing
type Identity struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (i Identity) String() string {
	return i.Owner + "/" + i.Name
}

// Cursor points into the paginated repository listing.
// Next, when set, is the continuation supplied by the server and takes
// precedence over Since.
type Cursor struct {
	Since int64
	Next  string
}

// RepositoryPage is one page of the repository listing
type RepositoryPage struct {
	Items []Identity
	Next  *Cursor
}

// Commit is the part of a commit record the activity aggregation needs
type Commit struct {
	AuthorName string
	AuthorDate time.Time
}

// CommitQuery addresses one page of a repository's commit history.
// Since and Until are passed to the API unmodified.
type CommitQuery struct {
	Page    int
	PerPage int
	Since   string
	Until   string
}

// ActivityDay holds commit activity for a single calendar day
type ActivityDay struct {
	Date    string   `json:"date"`
	Commits int      `json:"commits"`
	Authors []string `json:"authors"`
}

// SortField is a leaderboard column callers may order by
type SortField string

const (
	SortStars      SortField = "stars"
	SortWatchers   SortField = "watchers"
	SortForks      SortField = "forks"
	SortOpenIssues SortField = "open_issues"
)

// SortOrder is the leaderboard ordering direction
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ParseSortField validates a caller-supplied sort field. An empty value
// selects stars.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return SortStars, nil
	case SortStars, SortWatchers, SortForks, SortOpenIssues:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported sort field %q", s)
	}
}

// ParseSortOrder validates a caller-supplied direction. An empty value
// selects descending order.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OrderDesc, nil
	case OrderAsc, OrderDesc:
		return o, nil
	default:
		return "", fmt.Errorf("unsupported sort order %q", s)
	}
}

// LeaderboardQuery selects ranked repositories for display
type LeaderboardQuery struct {
	SortBy SortField
	Order  SortOrder
	PaginationParams
}

// PaginationParams represents parameters for paginated queries
type PaginationParams struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPaginationParams creates a new PaginationParams with validated values.
// If page or pageSize are less than 1, they will be set to their default values.
func NewPaginationParams(page, pageSize int) PaginationParams {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}
	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
	}
}

// Offset returns the row offset of the first item on the page
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}
