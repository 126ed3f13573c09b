package model

import (
	"net/url"
	"strings"
)

// NormalizeURL returns the equality key for a URL: the lowercase host without
// a leading "www." followed by the path without its trailing slash.
// Input that does not parse as an absolute URL is lowercased as-is.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	return strings.ToLower(host + path)
}

// ExtractDomain returns the lowercase host of a URL without a leading "www.",
// or "" when the URL has no host.
func ExtractDomain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
