package heuristic

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mikey/link-risk-engine/internal/core"
)

// Rule names
const (
	RuleHTTPSMissing        = "HTTPS missing"
	RuleURLShortener        = "URL shortener"
	RuleIPBasedURL          = "IP-based URL"
	RuleSuspiciousTLD       = "Suspicious TLD"
	RuleSuspiciousKeywords  = "Suspicious keywords"
	RuleExcessiveSubdomains = "Excessive subdomains"
	RuleLongURL             = "Long URL"
)

const (
	httpsMissingPoints  = 12
	shortenerPoints     = 18
	ipHostPoints        = 25
	suspiciousTLDPoints = 16
	keywordPoints       = 7
	keywordCap          = 28
	maxListedKeywords   = 6
	subdomainPoints     = 10
	subdomainMinDots    = 3
	longURLPoints       = 8
	longURLLength       = 100
)

var (
	schemePattern = regexp.MustCompile(`(?i)^https?://`)
	ipHostPattern = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}(:\d+)?$`)

	shorteners = map[string]struct{}{
		"bit.ly":      {},
		"t.co":        {},
		"tinyurl.com": {},
		"goo.gl":      {},
		"is.gd":       {},
		"cutt.ly":     {},
		"ow.ly":       {},
		"buff.ly":     {},
		"rb.gy":       {},
		"shorturl.at": {},
	}

	suspiciousTLDs = []string{".tk", ".ml", ".cf", ".gq", ".ga"}

	keywords = []string{
		"login", "verify", "update", "secure", "bank", "wallet",
		"claim", "free", "bonus", "gift", "prize", "password",
		"confirm", "suspend", "account", "urgent",
	}
)

// Analyzer applies fixed lexical rules to a URL.
// It holds no state and is safe for concurrent use.
type Analyzer struct{}

// NewAnalyzer creates a new heuristic URL analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze returns the findings for rawURL in rule order
func (a *Analyzer) Analyze(rawURL string) []core.Finding {
	link := Normalize(rawURL)
	parts := split(link)
	findings := make([]core.Finding, 0, 4)

	if parts.scheme != "https" {
		findings = append(findings, core.HeuristicFinding(RuleHTTPSMissing, httpsMissingPoints,
			"Connection not encrypted (HTTP)"))
	}

	if _, ok := shorteners[parts.hostname]; ok {
		findings = append(findings, core.HeuristicFinding(RuleURLShortener, shortenerPoints,
			"Known shortener: "+parts.hostname))
	}

	isIP := ipHostPattern.MatchString(parts.host)
	if isIP {
		findings = append(findings, core.HeuristicFinding(RuleIPBasedURL, ipHostPoints,
			"IP address as domain: "+parts.host))
	}

	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(parts.hostname, tld) {
			findings = append(findings, core.HeuristicFinding(RuleSuspiciousTLD, suspiciousTLDPoints,
				"Free/abused TLD: "+tld))
			break
		}
	}

	if hits := matchKeywords(strings.ToLower(parts.path + " " + parts.query)); len(hits) > 0 {
		points := min(len(hits)*keywordPoints, keywordCap)
		listed := hits
		if len(listed) > maxListedKeywords {
			listed = listed[:maxListedKeywords]
		}
		findings = append(findings, core.HeuristicFinding(RuleSuspiciousKeywords, points,
			"Keywords: "+strings.Join(listed, ", ")))
	}

	// A dotted-quad host is not a subdomain chain
	if dots := strings.Count(parts.hostname, "."); !isIP && dots >= subdomainMinDots {
		findings = append(findings, core.HeuristicFinding(RuleExcessiveSubdomains, subdomainPoints,
			fmt.Sprintf("%d domain levels", dots+1)))
	}

	if n := utf8.RuneCountInString(link); n > longURLLength {
		findings = append(findings, core.HeuristicFinding(RuleLongURL, longURLPoints,
			fmt.Sprintf("%d characters", n)))
	}

	return findings
}

// Normalize trims the URL and defaults the scheme to http
func Normalize(rawURL string) string {
	link := strings.TrimSpace(rawURL)
	if !schemePattern.MatchString(link) {
		link = "http://" + link
	}
	return link
}

type urlParts struct {
	scheme   string
	host     string // with port
	hostname string // without port
	path     string
	query    string
}

// split parses a normalized link, falling back to splitLenient when
// url.Parse rejects it (malformed percent escapes and the like)
func split(link string) urlParts {
	u, err := url.Parse(link)
	if err != nil {
		return splitLenient(link)
	}

	return urlParts{
		scheme:   strings.ToLower(u.Scheme),
		host:     strings.ToLower(u.Host),
		hostname: strings.ToLower(u.Hostname()),
		path:     u.EscapedPath(),
		query:    u.RawQuery,
	}
}

// splitLenient cuts a link into its parts without validating escapes
func splitLenient(link string) urlParts {
	var parts urlParts

	scheme, rest, ok := strings.Cut(link, "://")
	if !ok {
		rest = link
	} else {
		parts.scheme = strings.ToLower(scheme)
	}

	rest, _, _ = strings.Cut(rest, "#")

	authority := rest
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		authority, rest = rest[:i], rest[i:]
	} else {
		rest = ""
	}
	if i := strings.LastIndex(authority, "@"); i >= 0 {
		authority = authority[i+1:]
	}

	parts.host = strings.ToLower(authority)
	parts.hostname = parts.host
	if strings.HasPrefix(parts.host, "[") {
		if end := strings.Index(parts.host, "]"); end >= 0 {
			parts.hostname = parts.host[1:end]
		}
	} else if i := strings.LastIndex(parts.host, ":"); i >= 0 {
		parts.hostname = parts.host[:i]
	}

	parts.path, parts.query, _ = strings.Cut(rest, "?")
	return parts
}

func matchKeywords(text string) []string {
	var hits []string
	for _, k := range keywords {
		if strings.Contains(text, k) {
			hits = append(hits, k)
		}
	}
	return hits
}
