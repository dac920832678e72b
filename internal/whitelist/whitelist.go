package whitelist

import (
	"net"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/idna"
)

// Checker holds the hosts that are never sent to threat intelligence
// providers. A domain entry covers all of its subdomains; an IP entry only
// matches that address.
type Checker struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a new checker from a list of domains or IP addresses.
// Entries are lowercased and IDNA encoded; a leading "*." is accepted.
func NewChecker(entries []string, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}

	domains := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		entry = strings.TrimPrefix(strings.TrimSpace(entry), "*.")
		if d := canonicalHost(entry); d != "" {
			domains[d] = struct{}{}
		}
	}

	if len(domains) > 0 {
		logger.Info("Initialized intel skip list", zap.Int("entries", len(domains)))
	}

	return &Checker{
		domains: domains,
		logger:  logger,
	}
}

// IsWhitelisted reports whether host is a listed IP, a listed domain or a
// subdomain of one
func (c *Checker) IsWhitelisted(host string) bool {
	if c == nil || len(c.domains) == 0 {
		return false
	}

	host = canonicalHost(host)
	if host == "" {
		return false
	}

	if _, ok := c.domains[host]; ok {
		c.logger.Debug("Host is on the skip list", zap.String("host", host))
		return true
	}
	if net.ParseIP(host) != nil {
		return false
	}

	// Walk up the parent domains: a.b.example.com, b.example.com, example.com
	for rest := host; ; {
		i := strings.IndexByte(rest, '.')
		if i < 0 {
			return false
		}
		rest = rest[i+1:]
		if _, ok := c.domains[rest]; ok {
			c.logger.Debug("Host is on the skip list",
				zap.String("host", host),
				zap.String("domain", rest))
			return true
		}
	}
}

// canonicalHost lowercases, strips a trailing dot and punycodes host.
// Hosts that fail IDNA conversion are kept lowercased.
func canonicalHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}
