// Package datasource wraps every external HTTP dependency the heartbeat
// cycle reads from (whale-flow, price, volume, pulse, rug-warden,
// quoter, and the Solana RPC chain) behind a single adapter shape: a
// per-provider token-bucket rate limit, a bounded exponential-backoff
// retry confined to transient failures, and a per-call timeout. Any
// non-transient failure or exhausted retry budget fails the adapter
// closed rather than returning a stale or partial read.
package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chadboar/heartbeat-core/config"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// transientError marks a response as safe to retry; anything else is
// treated as a permanent failure and fails the call closed immediately.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Client is one rate-limited, retrying HTTP client bound to a single
// upstream provider.
type Client struct {
	name     string
	endpoint config.SourceEndpoint
	limiter  *rate.Limiter
	retry    config.RetryPolicy
	http     *http.Client
}

// NewClient builds a Client for the given named provider, wiring its
// configured rate limit into a golang.org/x/time/rate.Limiter and its
// retry policy into a github.com/cenkalti/backoff/v4 exponential
// backoff, grounded on the teacher's token-bucket middleware shape.
func NewClient(name string, ep config.SourceEndpoint) *Client {
	rps := rate.Limit(ep.Limit.RequestsPerSecond)
	if rps <= 0 {
		rps = rate.Inf
	}
	burst := ep.Limit.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		name:     name,
		endpoint: ep,
		limiter:  rate.NewLimiter(rps, burst),
		retry:    ep.Retry,
		http: &http.Client{
			Timeout: ep.Timeout,
		},
	}
}

// GetJSON issues a rate-limited, retried GET against path (relative to
// the provider's configured BaseURL) and decodes the JSON response body
// into out. A 4xx response is treated as permanent (fails closed
// without retry); network errors, 5xx, and 429 are retried per the
// provider's RetryPolicy.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	url := c.endpoint.BaseURL + path

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: rate limiter: %w", c.name, err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: build request: %w", c.name, err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return &transientError{err: fmt.Errorf("%s: request: %w", c.name, err)}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &transientError{err: fmt.Errorf("%s: upstream status %d", c.name, resp.StatusCode)}
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("%s: upstream status %d", c.name, resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &transientError{err: fmt.Errorf("%s: read body: %w", c.name, err)}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: decode body: %w", c.name, err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.InitialBackoff
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = 250 * time.Millisecond
	}
	bo.MaxElapsedTime = c.retry.MaxElapsed
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 20 * time.Second
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("datasource: %s fetch failed closed: %w", c.name, err)
	}
	return nil
}
