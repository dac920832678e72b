package intel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mikey/link-risk-engine/internal/core"
)

// ErrRateLimited is returned by a provider that refused to send a request
// because its local rate limit is exhausted
var ErrRateLimited = errors.New("rate limited")

// maxBodySize bounds provider response bodies
const maxBodySize = 2 << 20

// Provider is a threat intelligence source queried per URL
type Provider interface {
	// Name is the stable key used in summaries, cache keys and metrics
	Name() string

	// Label is the rule name of the provider's findings
	Label() string

	// Configured reports whether the provider has the settings it needs
	Configured() bool

	// Lookup queries the provider for a normalized URL. A non-nil error
	// means a transport failure, timeout or malformed body and the call may
	// be retried; rejections reported by the provider come back in the
	// result's Error field with a nil error.
	Lookup(ctx context.Context, url string) (core.ProviderResult, error)

	// Describe builds the finding detail for a contributing result
	Describe(result core.ProviderResult) string
}

// NewHTTPClient returns the HTTP client shared by providers. Per-attempt
// deadlines come from the request context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}
