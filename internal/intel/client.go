package intel

import (
	"context"
	"errors"
	"net"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mikey/link-risk-engine/internal/core"
)

// Diagnostics reported in ProviderResult.Error
const (
	ErrorNotConfigured = "not configured"
	ErrorSkipped       = "skipped: allowlisted host"
	ErrorTimeout       = "Timeout"
	ErrorRateLimited   = "Rate limited"

	maxErrorLength = 120
)

// Request outcomes reported to the Recorder
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeFailure     = "failure"
	OutcomeRateLimited = "rate_limited"
)

// Recorder receives provider request and cache observations
type Recorder interface {
	ObserveProviderRequest(provider, outcome string, duration time.Duration)
	ObserveCacheLookup(provider string, hit bool)
}

// SkipChecker decides whether a host must never be sent to providers
type SkipChecker interface {
	IsWhitelisted(host string) bool
}

// Options configures the envelope applied around every provider call
type Options struct {
	Timeout      time.Duration
	RetryBackoff time.Duration
	MaxAttempts  int
}

// DefaultOptions returns an 8s timeout, one retry after 1s
func DefaultOptions() Options {
	return Options{
		Timeout:      8 * time.Second,
		RetryBackoff: time.Second,
		MaxAttempts:  2,
	}
}

// Client queries all providers for a URL in parallel. Provider failures
// never escape; they are reported in the summary.
type Client struct {
	providers []Provider
	cache     core.CacheRepository
	skip      SkipChecker
	recorder  Recorder
	opts      Options
	group     singleflight.Group
	logger    *zap.Logger
}

// NewClient creates a new intel client. cache, skip and recorder may be nil.
func NewClient(
	providers []Provider,
	cache core.CacheRepository,
	skip SkipChecker,
	recorder Recorder,
	opts Options,
	logger *zap.Logger,
) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}

	return &Client{
		providers: providers,
		cache:     cache,
		skip:      skip,
		recorder:  recorder,
		opts:      opts,
		logger:    logger,
	}
}

// Query looks rawURL up in every provider. Findings come out in provider order.
func (c *Client) Query(ctx context.Context, rawURL string) core.IntelReport {
	normalized := NormalizeURL(rawURL)
	skipped := c.skip != nil && c.skip.IsWhitelisted(HostOf(normalized))

	results := make([]core.ProviderResult, len(c.providers))
	var g errgroup.Group
	for i, p := range c.providers {
		g.Go(func() error {
			results[i] = c.lookup(ctx, p, normalized, skipped)
			return nil
		})
	}
	_ = g.Wait()

	report := core.IntelReport{
		Findings: make([]core.Finding, 0, len(c.providers)),
		Summary:  make(map[string]core.ProviderResult, len(c.providers)),
	}
	for i, p := range c.providers {
		r := results[i]
		report.Summary[p.Name()] = r
		if r.Found && r.ScoreContribution > 0 {
			report.Findings = append(report.Findings, core.IntelFinding(p.Label(), r.ScoreContribution, p.Describe(r)))
		}
	}

	return report
}

// lookup applies the envelope: configuration, skip list, cache, coalescing
func (c *Client) lookup(ctx context.Context, p Provider, url string, skipped bool) core.ProviderResult {
	name := p.Name()

	if !p.Configured() {
		return core.ProviderResult{Provider: name, Error: ErrorNotConfigured}
	}
	if skipped {
		return core.ProviderResult{Provider: name, Error: ErrorSkipped}
	}

	if c.cache != nil {
		cached, ok := c.cache.Get(ctx, name, url)
		c.observeCache(name, ok)
		if ok {
			r := cached.Clone()
			r.Cached = true
			return r
		}
	}

	// Concurrent misses share one request, detached from caller cancellation.
	// Each caller stops waiting at its own deadline.
	ch := c.group.DoChan(name+"\x00"+url, func() (interface{}, error) {
		result, cacheable := c.fetch(ctx, p, url)
		if cacheable && c.cache != nil {
			c.cache.Set(context.WithoutCancel(ctx), name, url, result)
		}
		return result, nil
	})

	select {
	case res := <-ch:
		return res.Val.(core.ProviderResult).Clone()
	case <-ctx.Done():
		return core.ProviderResult{Provider: name, Error: describeError(ctx.Err())}
	}
}

// fetch calls the provider with per-attempt timeout and retry. Attempts are
// bounded by the attempt timeout only; the caller's context decides whether
// a retry is made. It reports whether the result may be cached, which is
// not the case when the caller's deadline cut the retries short.
func (c *Client) fetch(ctx context.Context, p Provider, url string) (core.ProviderResult, bool) {
	name := p.Name()
	detached := context.WithoutCancel(ctx)
	var (
		result core.ProviderResult
		err    error
	)

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(detached, c.opts.Timeout)
		result, err = p.Lookup(attemptCtx, url)
		cancel()
		result.Provider = name

		switch {
		case err == nil:
			outcome := OutcomeOK
			if result.Error != "" {
				outcome = OutcomeError
			}
			c.observeRequest(name, outcome, time.Since(start))
			return result, true

		case errors.Is(err, ErrRateLimited):
			c.observeRequest(name, OutcomeRateLimited, time.Since(start))
			c.logger.Warn("Provider rate limit reached, skipping lookup", zap.String("provider", name))
			result.Error = ErrorRateLimited
			return result, false
		}

		c.observeRequest(name, OutcomeFailure, time.Since(start))
		c.logger.Warn("Provider lookup failed",
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == c.opts.MaxAttempts {
			break
		}
		if !c.canRetry(ctx) {
			return failed(result, err), false
		}

		select {
		case <-ctx.Done():
			return failed(result, err), false
		case <-time.After(c.opts.RetryBackoff):
		}
	}

	return failed(result, err), true
}

// failed clears the verdict of a result whose lookup errored
func failed(result core.ProviderResult, err error) core.ProviderResult {
	result.Error = describeError(err)
	result.Found = false
	result.ScoreContribution = 0
	return result
}

// canRetry reports whether the caller's context leaves room for a retry
func (c *Client) canRetry(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < c.opts.RetryBackoff {
		return false
	}
	return true
}

func (c *Client) observeRequest(provider, outcome string, d time.Duration) {
	if c.recorder != nil {
		c.recorder.ObserveProviderRequest(provider, outcome, d)
	}
}

func (c *Client) observeCache(provider string, hit bool) {
	if c.recorder != nil {
		c.recorder.ObserveCacheLookup(provider, hit)
	}
}

// describeError turns a lookup error into a short diagnostic
func describeError(err error) string {
	if err == nil {
		return ""
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return ErrorTimeout
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) > maxErrorLength {
		msg = string([]rune(msg)[:maxErrorLength])
	}
	return msg
}
