// Package nexus talks to the indexer: the external service that absorbs raw
// storage writes and serves aggregated, queryable views of them.
package nexus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nexcal/nexcal/internal/common"
	"github.com/nexcal/nexcal/internal/logging"
	"github.com/nexcal/nexcal/internal/models"
)

// Fetcher retrieves the indexer's current copy of a resource.
// common.ErrNotIndexed means "not yet indexed" and is an expected outcome;
// any other error is a network-level failure the caller counts and retries.
type Fetcher interface {
	Fetch(ctx context.Context, key models.Key) (*models.Resource, error)
}

// HTTPClient fetches resources over the indexer's HTTP read API.
type HTTPClient struct {
	base string
	hc   *http.Client
	log  logging.Logger
}

// NewHTTPClient returns a fetcher for the API at baseURL. timeout bounds
// every fetch so a hung call cannot occupy a scheduled sync slot; zero means
// common.DefaultFetchTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration, log logging.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = common.DefaultFetchTimeout
	}
	return &HTTPClient{
		base: baseURL,
		hc:   &http.Client{Timeout: timeout},
		log:  log.With("component", "nexus"),
	}
}

// Fetch gets the indexer copy of key.
func (c *HTTPClient) Fetch(ctx context.Context, key models.Key) (*models.Resource, error) {
	u := fmt.Sprintf("%s/v1/index/%s/%s/%s",
		c.base, url.PathEscape(string(key.Kind)), url.PathEscape(key.Author), url.PathEscape(key.ID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIndexerFetch, err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIndexerFetch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, common.ErrNotIndexed
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %s", common.ErrIndexerFetch, resp.Status)
	}

	var res models.Resource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", common.ErrIndexerFetch, err)
	}
	res.Key = key
	return &res, nil
}
