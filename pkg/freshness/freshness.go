// Package freshness implements the default cacheability, freshness, and
// conditional-request evaluation rules RFC 9111 describes.
//
// Grounded on always-cache's rfc9111 package: ParseCacheControl
// (rfc9111/5.2_cache-control.go), the freshness-lifetime precedence rules
// (rfc9111/4.2.1._calculating-freshness-lifetime.go), age calculation
// (rfc9111/4.2.3._calculating-age.go), the must-revalidate/proxy-revalidate
// staleness rule (rfc9111/4.2.4._serving-stale-responses.go), and the
// If-None-Match/If-Modified-Since precedence rule
// (rfc9111/4.3.2._handling-a-received-validation-request.go). This package
// hand-rolls Cache-Control/HTTP-date parsing exactly as always-cache does:
// no header-parsing library appears anywhere in the retrieval pack.
package freshness

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CacheControl is a parsed Cache-Control header: directive name (lower
// case) to argument (empty string if the directive takes none).
type CacheControl struct {
	directives map[string]string
}

// ParseCacheControl parses one or more Cache-Control header field lines.
// Later lines win when a directive repeats, matching always-cache's
// ParseCacheControl.
func ParseCacheControl(values []string) CacheControl {
	m := make(map[string]string)
	for _, header := range values {
		for _, directive := range strings.Split(header, ",") {
			directive = strings.TrimSpace(directive)
			if directive == "" {
				continue
			}
			parts := strings.SplitN(directive, "=", 2)
			name := strings.ToLower(strings.TrimSpace(parts[0]))
			var arg string
			if len(parts) > 1 {
				arg = strings.Trim(strings.TrimSpace(parts[1]), `"`)
			}
			m[name] = arg
		}
	}
	return CacheControl{directives: m}
}

// Has reports whether the directive is present.
func (c CacheControl) Has(directive string) bool {
	_, ok := c.directives[directive]
	return ok
}

// Get returns a directive's argument and whether it was present.
func (c CacheControl) Get(directive string) (string, bool) {
	v, ok := c.directives[directive]
	return v, ok
}

// Seconds returns a delta-seconds directive's value as a duration.
func (c CacheControl) Seconds(directive string) (time.Duration, bool) {
	v, ok := c.directives[directive]
	if !ok {
		return 0, false
	}
	// max-stale is legal with no value, meaning "any amount of staleness".
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// MaxAge returns the max-age directive.
func (c CacheControl) MaxAge() (time.Duration, bool) { return c.Seconds("max-age") }

// SMaxAge returns the s-maxage directive.
func (c CacheControl) SMaxAge() (time.Duration, bool) { return c.Seconds("s-maxage") }

// IsCacheable implements the default cacheability rule: public,
// no no-store/no-cache/private, no Set-Cookie, Vary isn't bare "*", status
// is 200, and the response isn't already stale on arrival.
func IsCacheable(statusCode int, header http.Header, responseTime time.Time) bool {
	if statusCode != http.StatusOK {
		return false
	}
	if header.Get("Set-Cookie") != "" {
		return false
	}
	if vary := header.Get("Vary"); vary == "*" {
		return false
	}
	cc := ParseCacheControl(header.Values("Cache-Control"))
	if !cc.Has("public") {
		return false
	}
	if cc.Has("no-store") || cc.Has("no-cache") || cc.Has("private") {
		return false
	}
	if !responseTime.IsZero() && hasExplicitFreshness(cc, header) && ValidFor(header, responseTime, 0) <= 0 {
		// declared freshness information puts the response already past its
		// own expiry on arrival.
		return false
	}
	return true
}

func hasExplicitFreshness(cc CacheControl, header http.Header) bool {
	if _, ok := cc.SMaxAge(); ok {
		return true
	}
	if _, ok := cc.MaxAge(); ok {
		return true
	}
	return header.Get("Expires") != ""
}

// ValidFor computes how long a response should be considered fresh:
// s-maxage ?? max-age ?? (Expires - responseTime) ?? defaultTTL.
func ValidFor(header http.Header, responseTime time.Time, defaultTTL time.Duration) time.Duration {
	cc := ParseCacheControl(header.Values("Cache-Control"))
	if v, ok := cc.SMaxAge(); ok {
		return v
	}
	if v, ok := cc.MaxAge(); ok {
		return v
	}
	if expiresHeader := header.Get("Expires"); expiresHeader != "" {
		if expires, err := http.ParseTime(expiresHeader); err == nil {
			if d := expires.Sub(responseTime); d > 0 {
				return d
			}
			return 0
		}
	}
	return defaultTTL
}

// IsFresh implements the freshness algorithm for a cached entry
// being considered against an incoming request.
func IsFresh(cachedHeader http.Header, cachedEntryAge time.Duration, requestHeader http.Header) bool {
	cachedCC := ParseCacheControl(cachedHeader.Values("Cache-Control"))
	requestCC := ParseCacheControl(requestHeader.Values("Cache-Control"))

	age := cachedEntryAge
	if minFresh, ok := requestCC.Seconds("min-fresh"); ok {
		age += minFresh
	}

	if sMaxAge, ok := cachedCC.SMaxAge(); ok {
		return age < sMaxAge
	}

	cachedMaxAge, hasCachedMaxAge := cachedCC.MaxAge()
	requestMaxAge, hasRequestMaxAge := requestCC.MaxAge()

	var lowestMaxAge time.Duration
	hasLowest := false
	if hasCachedMaxAge {
		lowestMaxAge = cachedMaxAge
		hasLowest = true
	}
	if hasRequestMaxAge && (!hasLowest || requestMaxAge < lowestMaxAge) {
		lowestMaxAge = requestMaxAge
		hasLowest = true
	}

	if hasLowest {
		if age < lowestMaxAge {
			return true
		}
		if cachedCC.Has("must-revalidate") || cachedCC.Has("proxy-revalidate") {
			return false
		}
		if maxStale, ok := requestCC.Seconds("max-stale"); ok {
			if v, _ := requestCC.Get("max-stale"); v == "" {
				// directive present with no value: infinite staleness allowed.
				return true
			}
			return age-lowestMaxAge < maxStale
		}
		return false
	}

	if expiresHeader := cachedHeader.Get("Expires"); expiresHeader != "" {
		if expires, err := http.ParseTime(expiresHeader); err == nil {
			created, err2 := http.ParseTime(cachedHeader.Get("Date"))
			if err2 != nil {
				return false
			}
			responseTime := created.Add(age)
			return responseTime.Before(expires)
		}
	}

	return false
}

// ConditionalMatch reports whether the request's precondition indicates the
// cached response is unchanged, in which case a 304 should be served
// instead of the full body.
func ConditionalMatch(requestHeader, cachedHeader http.Header) bool {
	if inm := requestHeader.Get("If-None-Match"); inm != "" {
		if strings.TrimSpace(inm) == "*" {
			return true
		}
		cachedETag := cachedHeader.Get("ETag")
		if cachedETag == "" {
			return false
		}
		for _, candidate := range splitETagList(inm) {
			if weakETagEqual(candidate, cachedETag) {
				return true
			}
		}
		return false
	}

	if ims := requestHeader.Get("If-Modified-Since"); ims != "" {
		ifModifiedSince, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		lastModifiedHeader := cachedHeader.Get("Last-Modified")
		if lastModifiedHeader == "" {
			lastModifiedHeader = cachedHeader.Get("Date")
		}
		if lastModifiedHeader == "" {
			return false
		}
		lastModified, err := http.ParseTime(lastModifiedHeader)
		if err != nil {
			return false
		}
		return !lastModified.After(ifModifiedSince)
	}

	return false
}

func splitETagList(header string) []string {
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// weakETagEqual compares two ETags per the weak comparison function: equal
// if their opaque tags match, ignoring any W/ weak-validator prefix.
func weakETagEqual(a, b string) bool {
	return strings.TrimPrefix(a, "W/") == strings.TrimPrefix(b, "W/")
}
