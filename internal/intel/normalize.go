package intel

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var schemePattern = regexp.MustCompile(`(?i)^https?://`)

// lookupProfile converts hostnames the way resolvers see them
var lookupProfile = idna.New(idna.MapForLookup(), idna.Transitional(false))

// NormalizeURL returns the form of rawURL submitted to providers and used as
// the cache key: trimmed, scheme defaulted to http and lower-cased, host in
// lower-case ASCII
func NormalizeURL(rawURL string) string {
	link := strings.TrimSpace(rawURL)
	if !schemePattern.MatchString(link) {
		link = "http://" + link
	}

	u, err := url.Parse(link)
	if err != nil {
		return link
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := asciiHost(u.Hostname())
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	return u.String()
}

// HostOf returns the lower-case ASCII hostname of a normalized URL
func HostOf(normalizedURL string) string {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func asciiHost(host string) string {
	ascii, err := lookupProfile.ToASCII(host)
	if err != nil {
		return strings.ToLower(host)
	}
	return ascii
}
