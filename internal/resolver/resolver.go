// Package resolver maps storefront hostnames to tenant slugs through the
// platform resolver endpoint, fronted by a TTL cache. Only affirmative
// results are cached; unknown hosts re-query on every request.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/comandocentral/edge-svc/internal/metrics"
)

// Result is the resolver verdict for one hostname.
type Result struct {
	Found      bool   `json:"found"`
	TenantSlug string `json:"tenant_slug,omitempty"`
}

// Cache is the tenant-resolution cache. Get returns (result, hit). Put is
// expected to apply the cache's own TTL.
type Cache interface {
	Get(ctx context.Context, hostname string) (Result, bool, error)
	Put(ctx context.Context, hostname string, res Result) error
}

// Resolver resolves hostnames against the resolver endpoint, caching
// positive answers. Cache writes happen on a detached goroutine so they can
// never delay the caller; their failures are logged and dropped.
type Resolver struct {
	endpoint string
	client   *http.Client
	cache    Cache
	logger   *zap.Logger

	writes sync.WaitGroup
}

// New creates a Resolver. The endpoint must be the full resolver URL; the
// hostname is appended as a query parameter.
func New(endpoint string, cache Cache, timeout time.Duration, logger *zap.Logger) (*Resolver, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("resolver endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid resolver endpoint: %w", err)
	}
	return &Resolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		cache:    cache,
		logger:   logger,
	}, nil
}

// Resolve returns the tenant for a normalized hostname. A cache hit skips the
// network entirely. A resolver HTTP error yields {found:false} without
// caching, so the next request retries.
func (r *Resolver) Resolve(ctx context.Context, hostname string) (Result, error) {
	if r.cache != nil {
		res, hit, err := r.cache.Get(ctx, hostname)
		if err != nil {
			// A broken cache must not break routing; treat as a miss.
			r.logger.Warn("Tenant cache lookup failed",
				zap.String("hostname", hostname),
				zap.Error(err),
			)
		} else if hit {
			metrics.ResolverCacheHits.Inc()
			return res, nil
		}
	}

	res, err := r.lookup(ctx, hostname)
	if err != nil {
		return Result{}, err
	}

	if res.Found && r.cache != nil {
		r.writes.Add(1)
		go func() {
			defer r.writes.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.cache.Put(ctx, hostname, res); err != nil {
				r.logger.Warn("Tenant cache write failed",
					zap.String("hostname", hostname),
					zap.Error(err),
				)
			}
		}()
	}

	return res, nil
}

// lookup calls the resolver endpoint. The endpoint is configured to skip
// authentication, so no auth header is sent.
func (r *Resolver) lookup(ctx context.Context, hostname string) (Result, error) {
	metrics.ResolverLookups.Inc()

	u, err := url.Parse(r.endpoint)
	if err != nil {
		return Result{}, fmt.Errorf("invalid resolver endpoint: %w", err)
	}
	q := u.Query()
	q.Set("hostname", hostname)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build resolver request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("resolver request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Warn("Resolver returned non-2xx",
			zap.String("hostname", hostname),
			zap.Int("status", resp.StatusCode),
		)
		return Result{Found: false}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read resolver response: %w", err)
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return Result{}, fmt.Errorf("failed to parse resolver response: %w", err)
	}

	return res, nil
}

// Flush waits for in-flight background cache writes. Used on shutdown and in
// tests; callers on the request path never wait.
func (r *Resolver) Flush() {
	r.writes.Wait()
}
