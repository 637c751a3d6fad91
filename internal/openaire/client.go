// Package openaire is a small client for the OpenAIRE Graph API: it obtains
// a bearer token, performs authenticated GET requests against the named
// resources with bounded retry, and exposes the handful of lookups a coverage
// run needs.
package openaire

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

	"github.com/cenkalti/backoff"
	"github.com/openaire-nl/nl-stats/model"
	"github.com/openaire-nl/nl-stats/util"
	"go.uber.org/zap"
)

// Resource names
const (
	ResourceOrganizations    = "organizations"
	ResourceResearchProducts = "researchProducts"
	ResourceProjects         = "projects"
	ResourceDataSources      = "dataSources"
)

const (
	maxBodyBytes = 32 << 20
	maxPages     = 1000
)

// Options configures a Client. Zero values fall back to sensible defaults.
type Options struct {
	BaseURL        string
	Namespace      string
	MaxAttempts    int
	RetryInterval  time.Duration
	RequestTimeout time.Duration
	PageSize       int
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Client performs authenticated requests against the Graph API.
type Client struct {
	baseURL        string
	namespace      string
	maxAttempts    int
	retryInterval  time.Duration
	requestTimeout time.Duration
	pageSize       int
	http           *http.Client
	logger         *zap.Logger
	token          string
}

// NewClient creates a client. A token must be set with Authenticate or
// SetToken before resources are requested.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:        opts.BaseURL,
		namespace:      util.FirstNonEmpty(opts.Namespace, util.DefaultNamespace),
		maxAttempts:    opts.MaxAttempts,
		retryInterval:  opts.RetryInterval,
		requestTimeout: opts.RequestTimeout,
		pageSize:       opts.PageSize,
		http:           opts.HTTPClient,
		logger:         opts.Logger,
	}
	if c.baseURL != "" && !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 3
	}
	if c.retryInterval <= 0 {
		c.retryInterval = time.Second
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = 30 * time.Second
	}
	if c.pageSize <= 0 {
		c.pageSize = 100
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Authenticate obtains a token from p and uses it for subsequent requests.
func (c *Client) Authenticate(ctx context.Context, p *TokenProvider) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	c.token = token
	return nil
}

// SetToken sets the bearer token directly.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Get performs one authenticated GET against resource and decodes the JSON
// body into out. Server errors, timeouts and transport failures are retried
// with exponential backoff up to the configured number of attempts; every
// other failure is returned immediately.
func (c *Client) Get(ctx context.Context, resource string, params url.Values, out any) error {
	target := c.baseURL + resource
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = c.retryInterval << uint(c.maxAttempts)
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		c.logger.Debug("Fetching data", zap.String("url", target), zap.Int("attempt", attempt))

		err := c.do(ctx, target, out)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if ctx.Err() != nil || !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Request failed, retrying",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if attempt > 1 {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, target string, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Method: http.MethodGet, URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &APIError{Method: http.MethodGet, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", target, err)
	}
	return nil
}

// Search runs a search request and returns the envelope.
func (c *Client) Search(ctx context.Context, resource string, params url.Values) (*model.SearchResponse, error) {
	var resp model.SearchResponse
	if err := c.Get(ctx, resource, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Count returns header.numFound of a search, the total match count
// independent of the page size.
func (c *Client) Count(ctx context.Context, resource string, params url.Values) (int, error) {
	resp, err := c.Search(ctx, resource, params)
	if err != nil {
		return 0, err
	}
	return resp.Header.NumFound, nil
}

// SearchAll pages through a search until numFound results were collected, a
// page comes back empty, or the page cap is hit.
func (c *Client) SearchAll(ctx context.Context, resource string, params url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage

	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(c.pageSize))

		resp, err := c.Search(ctx, resource, q)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Results...)
		if len(resp.Results) == 0 || len(all) >= resp.Header.NumFound {
			break
		}
	}

	return all, nil
}

// ResolveOrganizations returns the aggregator organization ids registered
// for a persistent identifier, restricted to the configured namespace.
func (c *Client) ResolveOrganizations(ctx context.Context, pid string) ([]string, error) {
	results, err := c.SearchAll(ctx, ResourceOrganizations, url.Values{"pid": {pid}})
	if err != nil {
		return nil, fmt.Errorf("resolve organizations for %s: %w", pid, err)
	}
	ids := model.SearchResponse{Results: results}.OrganizationIDs()
	return util.FilterNamespace(ids, c.namespace), nil
}

// GetOrganization fetches a single organization record.
func (c *Client) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	var org model.Organization
	if err := c.Get(ctx, ResourceOrganizations+"/"+url.PathEscape(id), nil, &org); err != nil {
		return nil, fmt.Errorf("get organization %s: %w", id, err)
	}
	if org.ID == "" {
		org.ID = id
	}
	return &org, nil
}

// CountResearchProducts counts research products linked to an organization,
// collected from a data source, or both when both ids are given.
func (c *Client) CountResearchProducts(ctx context.Context, orgID, dsID string) (int, error) {
	params := url.Values{}
	if orgID != "" {
		params.Set("relOrganizationId", orgID)
	}
	if dsID != "" {
		params.Set("relCollectedFromDatasourceId", dsID)
	}
	if len(params) == 0 {
		return 0, errors.New("count research products: organization or data source id required")
	}

	n, err := c.Count(ctx, ResourceResearchProducts, params)
	if err != nil {
		return 0, fmt.Errorf("count research products (org=%q ds=%q): %w", orgID, dsID, err)
	}
	return n, nil
}

// CountProjects counts projects linked to an organization.
func (c *Client) CountProjects(ctx context.Context, orgID string) (int, error) {
	n, err := c.Count(ctx, ResourceProjects, url.Values{"relOrganizationId": {orgID}})
	if err != nil {
		return 0, fmt.Errorf("count projects for %s: %w", orgID, err)
	}
	return n, nil
}

// ListDataSources enumerates the data sources linked to an organization.
func (c *Client) ListDataSources(ctx context.Context, orgID string) ([]model.DataSource, error) {
	results, err := c.SearchAll(ctx, ResourceDataSources, url.Values{"relOrganizationId": {orgID}})
	if err != nil {
		return nil, fmt.Errorf("list data sources for %s: %w", orgID, err)
	}

	sources := make([]model.DataSource, 0, len(results))
	for _, raw := range results {
		var ds model.DataSource
		if err := json.Unmarshal(raw, &ds); err != nil {
			return nil, fmt.Errorf("decode data source of %s: %w", orgID, err)
		}
		sources = append(sources, ds)
	}
	return sources, nil
}

func truncate(b []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
