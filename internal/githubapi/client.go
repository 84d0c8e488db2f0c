// Package githubapi adapts the GitHub REST search and rate-limit endpoints to
// the harvest and quota interfaces.
package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/harvest"
	"github.com/JakeFAU/search-harvester/internal/quota"
	"github.com/JakeFAU/search-harvester/internal/transport"
)

// DefaultBaseURL is the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

// Getter performs one GET with bounded retry.
type Getter interface {
	Get(ctx context.Context, url, token string) (*transport.Response, error)
}

// Pacer spaces out requests of a resource class.
type Pacer interface {
	Wait(ctx context.Context, resource string) error
}

// Client talks to the search and rate-limit endpoints with one token.
type Client struct {
	getter  Getter
	pacer   Pacer
	baseURL string
	token   string
	logger  *zap.Logger
}

// New builds a Client. An empty baseURL selects DefaultBaseURL; pacer may be nil.
func New(getter Getter, pacer Pacer, baseURL, token string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		getter:  getter,
		pacer:   pacer,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger,
	}
}

type searchPayload struct {
	TotalCount        *int              `json:"total_count"`
	IncompleteResults bool              `json:"incomplete_results"`
	Items             *[]repositoryJSON `json:"items"`
}

type repositoryJSON struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
	HTMLURL     string     `json:"html_url"`
	Description *string    `json:"description"`
	Language    *string    `json:"language"`
	Stars       int64      `json:"stargazers_count"`
	Forks       int64      `json:"forks_count"`
	OpenIssues  int64      `json:"open_issues_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PushedAt    *time.Time `json:"pushed_at"`
}

func (r repositoryJSON) record() harvest.Record {
	rec := harvest.Record{
		ID:         r.ID,
		FullName:   r.FullName,
		Name:       r.Name,
		OwnerLogin: r.Owner.Login,
		HTMLURL:    r.HTMLURL,
		Stars:      r.Stars,
		Forks:      r.Forks,
		OpenIssues: r.OpenIssues,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if r.Description != nil {
		rec.Description = *r.Description
	}
	if r.Language != nil {
		rec.Language = *r.Language
	}
	if r.PushedAt != nil {
		rec.PushedAt = r.PushedAt.UTC()
	}
	return rec
}

type apiError struct {
	Message string `json:"message"`
}

// SearchURL renders the request URL for one page of a repository search.
func (c *Client) SearchURL(query string, page, perPage int) string {
	values := url.Values{}
	values.Set("q", query)
	values.Set("per_page", strconv.Itoa(perPage))
	values.Set("page", strconv.Itoa(page))
	return c.baseURL + "/search/repositories?" + values.Encode()
}

// Search runs one repository search request.
func (c *Client) Search(ctx context.Context, query string, page, perPage int) (harvest.SearchResult, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, harvest.ResourceSearch); err != nil {
			return harvest.SearchResult{}, err
		}
	}
	reqURL := c.SearchURL(query, page, perPage)
	resp, err := c.get(ctx, reqURL)
	if err != nil {
		return harvest.SearchResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return harvest.SearchResult{}, statusError(resp)
	}

	var payload searchPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return harvest.SearchResult{}, fmt.Errorf("%w: decode: %w", harvest.ErrMalformedResponse, err)
	}
	if payload.TotalCount == nil || payload.Items == nil {
		return harvest.SearchResult{}, fmt.Errorf("%w: missing total_count or items", harvest.ErrMalformedResponse)
	}
	items := make([]harvest.Record, 0, len(*payload.Items))
	for _, repo := range *payload.Items {
		items = append(items, repo.record())
	}
	return harvest.SearchResult{
		TotalCount:        *payload.TotalCount,
		IncompleteResults: payload.IncompleteResults,
		Items:             items,
		URL:               reqURL,
	}, nil
}

type rateLimitPayload struct {
	Resources map[string]struct {
		Limit     int   `json:"limit"`
		Remaining int   `json:"remaining"`
		Reset     int64 `json:"reset"`
	} `json:"resources"`
}

// RateLimits reads the budget of every resource class. The endpoint itself
// does not count against any budget.
func (c *Client) RateLimits(ctx context.Context) (map[string]quota.Budget, error) {
	resp, err := c.get(ctx, c.baseURL+"/rate_limit")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate limit status %d: %s", resp.StatusCode, message(resp.Body))
	}
	var payload rateLimitPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode rate limits: %w", harvest.ErrMalformedResponse, err)
	}
	budgets := make(map[string]quota.Budget, len(payload.Resources))
	for name, r := range payload.Resources {
		budgets[name] = quota.Budget{
			Limit:     r.Limit,
			Remaining: r.Remaining,
			Reset:     time.Unix(r.Reset, 0).UTC(),
		}
	}
	return budgets, nil
}

func (c *Client) get(ctx context.Context, reqURL string) (*transport.Response, error) {
	resp, err := c.getter.Get(ctx, reqURL, c.token)
	if err != nil {
		var terr *transport.Error
		if errors.As(err, &terr) {
			return nil, fmt.Errorf("%w: %w", harvest.ErrTransportFailure, err)
		}
		return nil, err
	}
	return resp, nil
}

// statusError classifies a non-200 answer. Primary and secondary rate limits
// come back as 403 or 429 and are recoverable by waiting.
func statusError(resp *transport.Response) error {
	msg := message(resp.Body)
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" ||
			resp.Header.Get("Retry-After") != "" ||
			strings.Contains(strings.ToLower(msg), "rate limit") {
			return fmt.Errorf("%w: %s", harvest.ErrQuotaExceeded, msg)
		}
	}
	return fmt.Errorf("%w: status %d: %s", harvest.ErrMalformedResponse, resp.StatusCode, msg)
}

func message(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	const maxLen = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
