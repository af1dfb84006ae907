package normalize

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// DefaultTrackingParams are query keys removed from every listing URL.
var DefaultTrackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"gclid", "fbclid", "msclkid", "yclid", "mc_eid", "mc_cid", "igshid",
	"spm", "ref", "tag", "affid", "affidname",
}

// DefaultTrackingPrefixes are query key prefixes removed from every listing URL.
var DefaultTrackingPrefixes = []string{"utm", "ga_", "icid", "mkt_"}

var multiSlash = regexp.MustCompile(`/{2,}`)

// URLRules controls which query parameters are treated as tracking noise.
type URLRules struct {
	Params   []string
	Prefixes []string
}

func (r URLRules) isTracking(key string) bool {
	k := strings.ToLower(key)
	for _, p := range r.Params {
		if k == p {
			return true
		}
	}
	for _, p := range r.Prefixes {
		if strings.HasPrefix(k, p) {
			return true
		}
	}
	return false
}

// CanonicalURL returns the canonical form of a listing link, or "" when the
// link is not an absolute http(s) URL. The scheme becomes https, the host is
// lower-cased without a leading "www.", default ports, repeated or trailing
// slashes, fragments and tracking parameters are removed, and the remaining
// query parameters are de-duplicated and sorted.
func CanonicalURL(raw string, rules URLRules) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	case strings.HasPrefix(strings.ToLower(s), "www."):
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return ""
	}
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	path := multiSlash.ReplaceAllString(u.EscapedPath(), "/")
	path = strings.TrimRight(path, "/")

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(host)
	b.WriteString(path)
	if q := canonicalQuery(u.RawQuery, rules); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

func canonicalQuery(raw string, rules URLRules) string {
	if raw == "" {
		return ""
	}
	// ParseQuery returns what it could parse alongside the first error.
	vals, _ := url.ParseQuery(raw)
	out := url.Values{}
	for k, vs := range vals {
		if k == "" || rules.isTracking(k) {
			continue
		}
		seen := make(map[string]bool, len(vs))
		for _, v := range vs {
			if seen[v] {
				continue
			}
			seen[v] = true
			out[k] = append(out[k], v)
		}
		sort.Strings(out[k])
	}
	return out.Encode()
}

// Host returns the host part of a canonical URL without any port.
func Host(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
