// Package cachekey computes deterministic cache keys from request identity
// and vary-by rules.
//
// Grounded on always-cache's pkg/cache-key package (CacheKeyer,
// GetKeyPrefix, AddVaryKeys), generalized from "vary by response Vary
// headers only" to "vary by headers, query keys, and custom dimensions all
// selected up front by policy", and made order-independent: always-cache's
// AddVaryKeys walks Vary header names in whatever order the origin sent
// them, so two functionally identical responses that merely list Vary
// headers in a different order produce different keys. This package sorts
// every multi-valued input before it contributes to the key, so ordering
// never matters.
package cachekey

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Separators use ASCII control characters that cannot appear in header
// values, query keys, or paths, so no input can forge a section boundary.
const (
	sectionSep = "\x1e"
	customSep  = "\x1f"
)

// Options tunes key derivation behavior.
type Options struct {
	// CaseSensitivePaths, when true, preserves the request path exactly as
	// received. When false, the path is upper-cased before it contributes to
	// the key, so paths differing only in case collide.
	CaseSensitivePaths bool
}

// Identity is the subset of request identity that contributes to the base
// key: method, scheme, host, and path.
type Identity struct {
	Method string
	Scheme string
	Host   string
	Path   string
}

// CreateBaseKey builds the base key form used when no vary-by rule is
// active: method + scheme + host + normalized path.
func CreateBaseKey(opts Options, id Identity) string {
	path := id.Path
	if !opts.CaseSensitivePaths {
		path = strings.ToUpper(path)
	}
	return id.Method + sectionSep + id.Scheme + sectionSep + id.Host + path
}

// CreateVaryByKey builds the full key, appending a canonical serialization
// of the selected request headers, query keys, and custom dimensions to the
// base key. Same request, same rules (in any order) -> same key.
func CreateVaryByKey(opts Options, id Identity, header http.Header, query url.Values, headers, queryKeys []string, custom map[string]string) string {
	base := CreateBaseKey(opts, id)
	if len(headers) == 0 && len(queryKeys) == 0 && len(custom) == 0 {
		return base
	}

	var parts []string
	if seg := canonicalHeaderSegment(header, headers); seg != "" {
		parts = append(parts, seg)
	}
	if seg := canonicalQuerySegment(query, queryKeys); seg != "" {
		parts = append(parts, seg)
	}
	if seg := canonicalCustomSegment(custom); seg != "" {
		parts = append(parts, seg)
	}

	return base + sectionSep + strings.Join(parts, sectionSep)
}

// canonicalHeaderSegment and canonicalQuerySegment build one entry per
// selected name ("NAME<US>VALUE(S)"), then sort the entries themselves so
// that the order names were selected in (e.g. the order a Vary header
// listed them) cannot change the resulting key.
func canonicalHeaderSegment(header http.Header, names []string) string {
	entries := make([]string, 0, len(names))
	for _, name := range names {
		values := header.Values(name)
		if len(values) == 0 {
			continue
		}
		entries = append(entries, strings.ToUpper(name)+customSep+canonicalizeValues(values))
	}
	sort.Strings(entries)
	return strings.Join(entries, customSep)
}

func canonicalQuerySegment(query url.Values, keys []string) string {
	entries := make([]string, 0, len(keys))
	for _, key := range keys {
		values := query[key]
		if len(values) == 0 {
			continue
		}
		entries = append(entries, strings.ToUpper(key)+customSep+canonicalizeValues(values))
	}
	sort.Strings(entries)
	return strings.Join(entries, customSep)
}

// canonicalCustomSegment builds the custom-dimension segment: for each
// (k, v) emit uppercase(k) + U+001F + v, then sort the resulting strings.
func canonicalCustomSegment(custom map[string]string) string {
	entries := make([]string, 0, len(custom))
	for k, v := range custom {
		entries = append(entries, strings.ToUpper(k)+customSep+v)
	}
	sort.Strings(entries)
	return strings.Join(entries, customSep)
}

// canonicalizeValues canonicalizes a header or query value set: a single
// value is uppercased; multiple values are each uppercased, then sorted
// byte-order ascending.
func canonicalizeValues(values []string) string {
	up := make([]string, len(values))
	for i, v := range values {
		up[i] = strings.ToUpper(v)
	}
	if len(up) > 1 {
		sort.Strings(up)
	}
	return strings.Join(up, customSep)
}
