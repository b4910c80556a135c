package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"githubrank/activity"
	"githubrank/db"
	"githubrank/github"
	"githubrank/models"
)

// GitHub owner and repository names
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// pathIdentity reads :owner and :repo. Both end up in GitHub API paths,
// so dot segments and anything outside the name charset are rejected.
func pathIdentity(c Context) (models.Identity, bool) {
	id := models.Identity{Owner: c.Param("owner"), Name: c.Param("repo")}
	for _, part := range []string{id.Owner, id.Name} {
		if part == "." || part == ".." || !namePattern.MatchString(part) {
			return id, false
		}
	}
	return id, true
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// health handles GET /healthz
func (s *Server) health(c Context) error {
	if err := s.backend.Ping(c.Request().Context()); err != nil {
		c.L.Warn("Health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: "unreachable"})
	}
	return c.OK(HealthResponse{Status: "ok", Database: "ok"})
}

// leaderboard handles GET /api/repos/top100
func (s *Server) leaderboard(c Context) error {
	sortBy, err := models.ParseSortField(c.QueryParam("sort"))
	if err != nil {
		return c.BadQuery(err.Error())
	}
	order, err := models.ParseSortOrder(c.QueryParam("order"))
	if err != nil {
		return c.BadQuery(err.Error())
	}

	limit := s.opts.TopN
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > s.opts.TopN {
			return c.BadQuery(fmt.Sprintf("limit must be between 1 and %d", s.opts.TopN))
		}
	}

	repos, err := s.backend.Leaderboard(c.Request().Context(), models.LeaderboardQuery{
		SortBy:           sortBy,
		Order:            order,
		PaginationParams: models.NewPaginationParams(1, limit),
	})
	if err != nil {
		return s.storeError(c, err)
	}
	return c.OK(repos)
}

// repository handles GET /api/repos/:owner/:repo
func (s *Server) repository(c Context) error {
	id, ok := pathIdentity(c)
	if !ok {
		return c.BadQuery("owner and repo must be valid GitHub names")
	}

	repo, err := s.backend.Repository(c.Request().Context(), id.String())
	if err != nil {
		return s.storeError(c, err)
	}
	return c.OK(repo)
}

// getActivity handles GET /api/repos/:owner/:repo/activity
func (s *Server) getActivity(c Context) error {
	id, ok := pathIdentity(c)
	if !ok {
		return c.BadQuery("owner and repo must be valid GitHub names")
	}
	owner, name := id.Owner, id.Name

	days, err := s.backend.GetActivity(c.Request().Context(), owner, name, c.QueryParam("since"), c.QueryParam("until"))
	switch {
	case err == nil:
		return c.OK(days)
	case errors.Is(err, github.ErrNotFound):
		return c.NotFound(fmt.Sprintf("repository %s/%s not found", owner, name))
	case errors.Is(err, activity.ErrActivityUnavailable), errors.Is(err, github.ErrRateLimited):
		c.L.Warn("Activity unavailable", zap.String("owner", owner), zap.String("repo", name), zap.Error(err))
		return c.Fail(http.StatusServiceUnavailable, codeUpstreamUnavailable, "commit history is temporarily unavailable")
	default:
		c.L.Error("Failed to aggregate activity", zap.String("owner", owner), zap.String("repo", name), zap.Error(err))
		return c.Fail(http.StatusBadGateway, codeUpstreamFailed, "failed to read commit history")
	}
}

func (s *Server) storeError(c Context, err error) error {
	switch {
	case errors.Is(err, db.ErrInvalidQueryParameter), errors.Is(err, db.ErrInvalidInput):
		return c.BadQuery(err.Error())
	case errors.Is(err, db.ErrRepositoryNotFound):
		return c.NotFound("repository not found")
	case errors.Is(err, db.ErrDatabaseConnection):
		c.L.Error("Store unavailable", zap.Error(err))
		return c.Fail(http.StatusServiceUnavailable, codeStoreUnavailable, "store is unavailable")
	default:
		c.L.Error("Store query failed", zap.Error(err))
		return c.Fail(http.StatusInternalServerError, codeInternal, "internal error")
	}
}
