/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package portalclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/estatehub/portal-sync/pkg/config"
	"github.com/estatehub/portal-sync/pkg/constants"
	"github.com/estatehub/portal-sync/pkg/logging"
	"github.com/estatehub/portal-sync/pkg/types"
	"golang.org/x/time/rate"
)

var logger = logging.New("portalclient")

// ErrResponseTooLarge is wrapped when a response body exceeds the read limit.
var ErrResponseTooLarge = errors.New("backend response too large")

var paths = map[types.Resource]string{
	types.ResourceMaintenanceRequests: constants.PathMaintenanceRequests,
	types.ResourceInvoices:            constants.PathInvoices,
	types.ResourcePayments:            constants.PathPayments,
	types.ResourceLeases:              constants.PathLeases,
	types.ResourceUnits:               constants.PathUnits,
	types.ResourceNotifications:       constants.PathNotifications,
	types.ResourceProfile:             constants.PathProfile,
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Resource   types.Resource
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: backend returned %d", e.Resource, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: backend returned %d: %s", e.Resource, e.StatusCode, e.Body)
}

// IsRetryable reports whether a failed fetch is worth repeating: transport
// failures, 408, 429 and 5xx are; cancellation, oversized bodies and other
// statuses are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, types.ErrUnknownResource) ||
		errors.Is(err, ErrResponseTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusRequestTimeout,
			se.StatusCode == http.StatusTooManyRequests,
			se.StatusCode >= 500:
			return true
		default:
			return false
		}
	}
	return true
}

// Client fetches dashboard listings from the portal REST backend. All
// requests made through one Client share a single rate limiter.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter

	// maxBytes bounds a response body.
	maxBytes int64
}

// New creates and returns a configured Client.
func New(cfg config.BackendConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported backend scheme %q", base.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout
	}
	limit := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = constants.DefaultBurst
	}

	logger.Infof("created backend client for %s (timeout=%v rate=%v burst=%d)", base, timeout, cfg.RatePerSec, burst)
	return &Client{
		base:    base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),

		maxBytes: constants.MaxResponseBytes,
	}, nil
}

// Fetch returns the raw body of the listing for resource filtered by query.
func (c *Client) Fetch(ctx context.Context, resource types.Resource, query map[string]string) ([]byte, error) {
	endpoint, err := c.endpoint(resource, query)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", resource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", resource, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Debugf("backend answered %d for %s", resp.StatusCode, endpoint)
		return nil, &StatusError{
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), 256),
		}
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("fetch %s: %w (limit %d bytes)", resource, ErrResponseTooLarge, c.maxBytes)
	}
	return body, nil
}

func (c *Client) endpoint(resource types.Resource, query map[string]string) (string, error) {
	path, ok := paths[resource]
	if !ok {
		return "", fmt.Errorf("%w: %q", types.ErrUnknownResource, resource)
	}

	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		q := url.Values{}
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
