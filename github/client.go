package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"githubrank/logger"
	"githubrank/models"
)

const (
	// CommitsPerPage is GitHub's maximum allowed page size
	CommitsPerPage = 100

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 16 << 20
)

// ClientConfig configures a Client
type ClientConfig struct {
	Token      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	MaxBackoff time.Duration
}

// Client represents a GitHub API client
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    *url.URL
	timeout    time.Duration
	maxRetries int
	maxBackoff time.Duration
	log        *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

type ownerResponse struct {
	Login string `json:"login"`
}

// RepoResponse is the subset of GET /repos/{owner}/{repo} we use
type RepoResponse struct {
	FullName        string        `json:"full_name"`
	Owner           ownerResponse `json:"owner"`
	Language        *string       `json:"language"`
	ForksCount      int           `json:"forks_count"`
	StargazersCount *int          `json:"stargazers_count"`
	OpenIssuesCount int           `json:"open_issues_count"`
	WatchersCount   int           `json:"watchers_count"`
}

type listingItem struct {
	Name     string        `json:"name"`
	FullName string        `json:"full_name"`
	Owner    ownerResponse `json:"owner"`
}

type CommitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author *struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// NewClient creates a client for the GitHub REST API
func NewClient(cfg ClientConfig, log *zap.Logger) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = "https://api.github.com"
	}
	baseURL, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL %q: %w", raw, err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid GitHub API URL %q: scheme and host are required", raw)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	l := logger.OrNop(log)
	l.Info("Initializing GitHub client",
		zap.String("base_url", baseURL.String()),
		zap.Bool("authenticated", cfg.Token != ""))

	return &Client{
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		maxBackoff: cfg.MaxBackoff,
		log:        l,
		sleep:      sleepContext,
	}, nil
}

// ListRepositories fetches one page of the public repository listing.
// Page.Next is nil when the server supplied no rel="next" link.
func (c *Client) ListRepositories(ctx context.Context, cursor models.Cursor) (*models.RepositoryPage, error) {
	reqURL, err := c.listingURL(cursor)
	if err != nil {
		return nil, err
	}

	c.log.Debug("Fetching repository listing page", zap.String("url", reqURL))

	resp, body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository listing: %w", err)
	}

	var items []listingItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: repository listing: %v", ErrMalformedResponse, err)
	}

	page := &models.RepositoryPage{Items: make([]models.Identity, 0, len(items))}
	for _, item := range items {
		if item.Owner.Login == "" || item.Name == "" {
			c.log.Warn("Skipping listing item without owner or name", zap.String("full_name", item.FullName))
			continue
		}
		page.Items = append(page.Items, models.Identity{Owner: item.Owner.Login, Name: item.Name})
	}

	if next := parseNextLink(resp.Header.Get("Link")); next != "" {
		page.Next = &models.Cursor{Next: next}
	}
	return page, nil
}

func (c *Client) listingURL(cursor models.Cursor) (string, error) {
	if cursor.Next == "" {
		u := c.baseURL.JoinPath("repositories")
		q := u.Query()
		q.Set("since", strconv.FormatInt(cursor.Since, 10))
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	next, err := c.baseURL.Parse(cursor.Next)
	if err != nil {
		return "", fmt.Errorf("%w: invalid continuation link: %v", ErrMalformedResponse, err)
	}
	if next.Host != c.baseURL.Host {
		return "", fmt.Errorf("%w: continuation link points to foreign host %q", ErrMalformedResponse, next.Host)
	}
	return next.String(), nil
}

// FetchRepo fetches the raw repository detail
func (c *Client) FetchRepo(ctx context.Context, owner, name string) (*RepoResponse, error) {
	reqURL := c.baseURL.JoinPath("repos", owner, name)

	c.log.Debug("Fetching repository",
		zap.String("owner", owner),
		zap.String("name", name),
		zap.String("url", reqURL.String()))

	_, body, err := c.get(ctx, reqURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository %s/%s: %w", owner, name, err)
	}

	var repo RepoResponse
	if err := json.Unmarshal(body, &repo); err != nil {
		c.log.Error("Failed to decode repository response",
			zap.Error(err),
			zap.String("owner", owner),
			zap.String("name", name))
		return nil, fmt.Errorf("%w: repository %s/%s: %v", ErrMalformedResponse, owner, name, err)
	}
	return &repo, nil
}

// FetchDetail fetches and normalizes the detail record of one repository.
// The owner recorded is the one from the listing identity.
func (c *Client) FetchDetail(ctx context.Context, owner, name string) (*models.RepositoryDetail, error) {
	repo, err := c.FetchRepo(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	detail, err := repo.Detail(owner)
	if err != nil {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, name, err)
	}
	return detail, nil
}

// Detail converts the response into a detail record
func (r *RepoResponse) Detail(owner string) (*models.RepositoryDetail, error) {
	if r.FullName == "" {
		return nil, fmt.Errorf("%w: missing full_name", ErrIncomplete)
	}
	if r.StargazersCount == nil {
		return nil, fmt.Errorf("%w: missing stargazers_count", ErrIncomplete)
	}
	if owner == "" {
		owner = r.Owner.Login
	}

	language := models.DefaultLanguage
	if r.Language != nil && *r.Language != "" {
		language = *r.Language
	}

	return &models.RepositoryDetail{
		FullName:   r.FullName,
		Owner:      owner,
		Stars:      *r.StargazersCount,
		Watchers:   r.WatchersCount,
		Forks:      r.ForksCount,
		OpenIssues: r.OpenIssuesCount,
		Language:   language,
	}, nil
}

// ListCommits fetches one page of a repository's commits. Since and Until
// are forwarded untouched when non-empty.
func (c *Client) ListCommits(ctx context.Context, owner, name string, query models.CommitQuery) ([]models.Commit, error) {
	reqURL := c.baseURL.JoinPath("repos", owner, name, "commits")

	perPage := query.PerPage
	if perPage <= 0 {
		perPage = CommitsPerPage
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}

	q := reqURL.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if query.Since != "" {
		q.Set("since", query.Since)
	}
	if query.Until != "" {
		q.Set("until", query.Until)
	}
	reqURL.RawQuery = q.Encode()

	c.log.Debug("Fetching commits page",
		zap.String("owner", owner),
		zap.String("name", name),
		zap.Int("page", page))

	resp, body, err := c.get(ctx, reqURL.String())
	if err != nil {
		// GitHub answers 409 for a repository without any commits
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return []models.Commit{}, nil
		}
		return nil, fmt.Errorf("failed to fetch commits for %s/%s: %w", owner, name, err)
	}

	var raw []CommitResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: commits for %s/%s: %v", ErrMalformedResponse, owner, name, err)
	}

	commits := make([]models.Commit, 0, len(raw))
	for _, rc := range raw {
		if rc.Commit.Author == nil || rc.Commit.Author.Date.IsZero() {
			c.log.Warn("Skipping commit without author data",
				zap.String("sha", rc.SHA),
				zap.String("owner", owner),
				zap.String("name", name))
			continue
		}
		commits = append(commits, models.Commit{
			AuthorName: rc.Commit.Author.Name,
			AuthorDate: rc.Commit.Author.Date,
		})
	}
	return commits, nil
}

// get performs a GET, retrying transient failures and rate limits with
// backoff. The response is returned alongside non-retryable errors so
// callers can inspect the status.
func (c *Client) get(ctx context.Context, reqURL string) (*http.Response, []byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, body, err := c.getOnce(ctx, reqURL)
		if err == nil {
			return resp, body, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		var wait time.Duration
		switch {
		case errors.Is(err, ErrRateLimited):
			wait = rateLimitWait(resp, attempt, c.maxBackoff)
		case errors.Is(err, ErrTransient):
			wait = backoff(attempt, c.maxBackoff)
		default:
			return resp, nil, err
		}

		lastErr = err
		if attempt == c.maxRetries {
			break
		}

		c.log.Warn("Retrying GitHub request",
			zap.Error(err),
			zap.String("url", reqURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait))
		if err := c.sleep(ctx, wait); err != nil {
			return nil, nil, err
		}
	}

	return nil, nil, fmt.Errorf("giving up after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) getOnce(ctx context.Context, reqURL string) (*http.Response, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s", c.token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return resp, nil, fmt.Errorf("%w: reading body: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, body, nil
	case resp.StatusCode == http.StatusNotFound:
		return resp, nil, ErrNotFound
	case isRateLimitResponse(resp):
		if rl := parseRateLimit(resp); rl != nil {
			c.log.Warn("Rate limit exceeded",
				zap.Int("status_code", resp.StatusCode),
				zap.Int("limit", rl.Limit),
				zap.Int("remaining", rl.Remaining),
				zap.Time("reset_time", rl.Reset))
		}
		return resp, nil, fmt.Errorf("%w: status code %d", ErrRateLimited, resp.StatusCode)
	case isServerError(resp):
		return resp, nil, fmt.Errorf("%w: status code %d", ErrTransient, resp.StatusCode)
	default:
		return resp, nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

// parseNextLink extracts the rel="next" target from a Link header
func parseNextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segs[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")
			}
		}
	}
	return ""
}
