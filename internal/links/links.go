// Package links extracts and normalizes outbound URLs of posts.
package links

import (
	"net/url"
	"regexp"
	"strings"
)

// urlPattern matches http(s) URLs in free text.
var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"{}|\\^\x60\[\]]+`)

// trailingPunct is stripped from extracted URLs ("see https://x.io/a)." → "https://x.io/a").
const trailingPunct = ".,;:!?)'\""

// Extract returns the URLs found in text, in order of appearance, with trailing
// punctuation removed. Duplicates are kept; callers normalize before comparing.
func Extract(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	result := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, trailingPunct)
		if m != "" {
			result = append(result, m)
		}
	}
	return result
}

// Normalize reduces a URL to scheme://host/path for identity comparison:
// scheme and host are lowercased, a leading "www." is dropped, the default port,
// query, fragment and trailing slash are removed. It returns "" for values that
// are not absolute http(s) URLs.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host = host + ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	return scheme + "://" + host + path
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// NormalizeAll normalizes every URL, dropping unparsable ones and duplicates
// while keeping first-seen order.
func NormalizeAll(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	result := make([]string, 0, len(raw))
	for _, r := range raw {
		n := Normalize(r)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		result = append(result, n)
	}
	return result
}
