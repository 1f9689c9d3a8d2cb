// Package outputcache implements an HTTP output-caching middleware: a
// request-lifecycle state machine, key derivation, response-capture shim,
// and conditional-request revalidation path.
//
// Grounded on always-cache's always-cache.go (Config/AlwaysCache/
// CreateCache/ServeHTTP) for overall shape, exposed as a standard
// New(...).Middleware(next) net/http chain link.
package outputcache

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/outputcache/outputcache/pkg/cachekey"
	"github.com/outputcache/outputcache/pkg/capture"
	"github.com/outputcache/outputcache/pkg/freshness"
	"github.com/outputcache/outputcache/store"
)

// PathCasePolicy controls whether the request path contributes to the
// cache key case-sensitively.
type PathCasePolicy int

const (
	// PathCasePreserve keeps the path exactly as received. The default.
	PathCasePreserve PathCasePolicy = iota
	// PathCaseInsensitive normalizes the path before it contributes to the
	// key, so paths differing only in case collide.
	PathCaseInsensitive
)

const defaultExpiration = 60 * time.Second

// Config configures a Cache instance.
type Config struct {
	// Store is the storage backend. Required.
	Store store.Backend
	// Policy classifies requests and responses. Defaults to DefaultPolicy.
	Policy Policy
	// Clock is the wall-time source. Defaults to SystemClock.
	Clock Clock
	// MaximumBodySize is the per-response capture ceiling. Defaults to
	// capture.DefaultMaxBodySize.
	MaximumBodySize int
	// DefaultExpiration is the fallback TTL for cacheable responses that
	// carry no explicit freshness information. Defaults to 60s.
	DefaultExpiration time.Duration
	// PathCase controls path case sensitivity in the cache key. Defaults to
	// PathCasePreserve.
	PathCase PathCasePolicy
	// Logger is the base logger; a child logger is derived from it. Uses a
	// console logger if nil.
	Logger *zerolog.Logger
}

// Cache is the middleware core.
type Cache struct {
	store             store.Backend
	policy            Policy
	clock             Clock
	maxBodySize       int
	defaultExpiration time.Duration
	keyOpts           cachekey.Options
	log               zerolog.Logger
}

// New validates cfg and constructs a Cache. Returns a *ConfigurationError if
// a required collaborator is missing.
func New(cfg Config) (*Cache, error) {
	if cfg.Store == nil {
		return nil, &ConfigurationError{Field: "Store", Reason: "a storage backend is required"}
	}

	policy := cfg.Policy
	if policy == nil {
		policy = DefaultPolicy{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	maxBody := cfg.MaximumBodySize
	if maxBody <= 0 {
		maxBody = capture.DefaultMaxBodySize
	}
	expiration := cfg.DefaultExpiration
	if expiration <= 0 {
		expiration = defaultExpiration
	}

	var logger zerolog.Logger
	if cfg.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("component", "outputcache").Logger()

	return &Cache{
		store:             cfg.Store,
		policy:            policy,
		clock:             clock,
		maxBodySize:       maxBody,
		defaultExpiration: expiration,
		keyOpts:           cachekey.Options{CaseSensitivePaths: cfg.PathCase == PathCasePreserve},
		log:               logger,
	}, nil
}

// Middleware wraps next with output caching. It is the module's one entry
// point.
func (c *Cache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if HasFeatureMarker(r.Context()) {
			err := &ConfigurationError{Field: "feature marker", Reason: "output caching middleware already installed for this request"}
			c.log.Error().Err(err).Msg("refusing to install a second time")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		r = r.WithContext(WithFeatureMarker(r.Context()))

		rc := NewRequestContext(r, w, c.log)
		c.policy.OnRequest(rc)

		if !rc.AttemptCaching {
			next.ServeHTTP(rc.Response, rc.Request)
			return
		}

		c.handle(rc, next)
	})
}

// handle runs the lookup-then-capture request lifecycle, continuing after
// classification and the attemptCaching=false pass-through already handled
// in Middleware.
func (c *Cache) handle(rc *RequestContext, next http.Handler) {
	if rc.AllowLookup || rc.AllowStorage {
		key, err := c.computeKey(rc)
		if err != nil {
			rc.Log.Error().Err(err).Msg("cache key undefined")
			http.Error(rc.Response, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		rc.CacheKey = key
	}

	if rc.AllowLookup {
		served, terminate := c.tryServeFromCache(rc)
		if served || terminate {
			return
		}
	}

	if rc.AllowStorage {
		c.captureAndForward(rc, next)
		return
	}

	next.ServeHTTP(rc.Response, rc.Request)
}

func (c *Cache) computeKey(rc *RequestContext) (string, error) {
	id := cachekey.Identity{
		Method: rc.Request.Method,
		Scheme: requestScheme(rc.Request),
		Host:   rc.Request.Host,
		Path:   rc.Request.URL.Path,
	}
	key := cachekey.CreateVaryByKey(
		c.keyOpts, id,
		rc.Request.Header, rc.Request.URL.Query(),
		rc.CachedVaryByRules.Headers, rc.CachedVaryByRules.QueryKeys, rc.CachedVaryByRules.Custom,
	)
	if rc.CachedVaryByRules.Prefix != "" {
		key = rc.CachedVaryByRules.Prefix + key
	}
	if key == "" {
		return "", ErrCacheKeyUndefined
	}
	return key, nil
}

func requestScheme(r *http.Request) string {
	if r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// tryServeFromCache looks up a cache entry and, if it's fresh, serves it.
// served reports whether a cached response (full replay or 304) was
// written to the client; terminate reports whether the request is fully
// handled even though nothing was served from cache (the only-if-cached
// 504 case).
func (c *Cache) tryServeFromCache(rc *RequestContext) (served, terminate bool) {
	entry, ok, err := c.store.Get(rc.CacheKey)
	if err != nil {
		rc.Log.Warn().Err(&StorageError{Op: "get", Err: err}).Msg("cache lookup failed, treating as miss")
		ok = false
	}

	if !ok {
		if onlyIfCached(rc.Request) {
			http.Error(rc.Response, http.StatusText(http.StatusGatewayTimeout), http.StatusGatewayTimeout)
			return false, true
		}
		return false, false
	}

	c.policy.OnServeFromCache(rc)

	rc.ResponseTime = c.clock.Now()
	rc.CachedEntryAge = durationMax(0, rc.ResponseTime.Sub(entry.Created))

	if !freshness.IsFresh(entry.Headers, rc.CachedEntryAge, rc.Request.Header) {
		return false, false
	}

	if freshness.ConditionalMatch(rc.Request.Header, entry.Headers) {
		c.writeNotModified(rc, entry)
		return true, false
	}

	c.writeCachedResponse(rc, entry)
	return true, false
}

func onlyIfCached(r *http.Request) bool {
	cc := freshness.ParseCacheControl(r.Header.Values("Cache-Control"))
	return cc.Has("only-if-cached")
}

// notModifiedHeaders is the subset of cached headers a 304 response
// carries.
var notModifiedHeaders = []string{"Cache-Control", "Content-Location", "Date", "ETag", "Expires", "Vary"}

func (c *Cache) writeNotModified(rc *RequestContext, entry store.Entry) {
	h := rc.Response.Header()
	for _, name := range notModifiedHeaders {
		if v := entry.Headers.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	rc.Response.WriteHeader(http.StatusNotModified)
	rc.Log.Debug().Str("key", rc.CacheKey).Msg("served 304 from cache")
}

func (c *Cache) writeCachedResponse(rc *RequestContext, entry store.Entry) {
	h := rc.Response.Header()
	for name, values := range entry.Headers {
		h[name] = append([]string(nil), values...)
	}
	h.Set("Age", strconv.Itoa(int(rc.CachedEntryAge.Seconds())))

	rc.Response.WriteHeader(entry.StatusCode)
	rc.Log.Debug().Str("key", rc.CacheKey).Int("age", int(rc.CachedEntryAge.Seconds())).Msg("served hit from cache")

	if rc.Request.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(rc.Response, bytes.NewReader(entry.Body)); err != nil {
		if rc.Request.Context().Err() != nil {
			// client aborted mid-copy: abort the transport quietly, do not
			// surface this as an error.
			return
		}
		rc.Log.Error().Err(err).Msg("could not write cached response body to client")
	}
}

// captureAndForward installs the capture stream, invokes downstream,
// finalizes headers, commits the body, and detaches the capture stream on
// every exit path including panics.
func (c *Cache) captureAndForward(rc *RequestContext, next http.Handler) {
	cs := capture.New(rc.Response, c.maxBodySize, func() {
		c.startResponse(rc)
	})
	rc.attachCapture(cs)
	defer rc.detachCapture()

	next.ServeHTTP(rc.Response, rc.Request)

	// A handler that never wrote a body (e.g. WriteHeader(http.StatusNoContent)
	// alone) never triggered the capture stream's onFirstWrite callback.
	c.startResponse(rc)

	c.policy.OnServeResponse(rc)
	c.finalizeCachedResponse(rc)
	c.commitBody(rc, cs)
}

// startResponse is an idempotent transition that records when the
// downstream response began, ahead of anything that depends on wall time
// (Date, Age, freshness lifetime).
func (c *Cache) startResponse(rc *RequestContext) {
	if rc.ResponseStarted() {
		return
	}
	rc.markResponseStarted()
	rc.ResponseTime = c.clock.Now()
}

// finalizeCachedResponse snapshots the headers that will be committed, once
// OnServeResponse has had a chance to decide cacheability. A response that
// isn't cacheable drops its buffered bytes instead.
func (c *Cache) finalizeCachedResponse(rc *RequestContext) {
	if !rc.IsResponseCacheable {
		if cs, ok := rc.Response.(interface{ DisableBuffering() }); ok {
			cs.DisableBuffering()
		}
		return
	}

	header := rc.Response.Header()
	rc.CachedResponseValidFor = freshness.ValidFor(header, rc.ResponseTime, c.defaultExpiration)

	if header.Get("Date") == "" {
		header.Set("Date", rc.ResponseTime.UTC().Format(http.TimeFormat))
	}
	created, err := http.ParseTime(header.Get("Date"))
	if err != nil {
		created = rc.ResponseTime
	}
	rc.ResponseDate = created

	headers := make(http.Header, len(header))
	for name, values := range header {
		if name == "Age" {
			continue
		}
		headers[name] = append([]string(nil), values...)
	}

	rc.CachedResponse = &CachedResponse{
		Created:    created,
		StatusCode: rc.StatusCode(),
		Headers:    headers,
	}
}

// commitBody stores the captured body and headers once a response has
// finished, provided the buffered length agrees with any declared
// Content-Length.
func (c *Cache) commitBody(rc *RequestContext, cs *capture.Stream) {
	if !rc.IsResponseCacheable || !cs.BufferingEnabled() {
		return
	}

	buf := cs.BufferedBody()
	headers := rc.CachedResponse.Headers
	contentLength := headers.Get("Content-Length")

	permitted := contentLength == ""
	if !permitted {
		if n, err := strconv.Atoi(contentLength); err == nil && n == len(buf) {
			permitted = true
		}
	}
	if !permitted && len(buf) == 0 && rc.Request.Method == http.MethodHead {
		permitted = true
	}
	if !permitted {
		rc.Log.Warn().Str("key", rc.CacheKey).Msg("captured body length mismatch, skipping commit")
		return
	}

	if contentLength == "" && headers.Get("Transfer-Encoding") == "" {
		headers.Set("Content-Length", strconv.Itoa(len(buf)))
	}

	rc.CachedResponse.Body = buf

	err := c.store.Set(rc.CacheKey, store.Entry{
		Created:    rc.CachedResponse.Created,
		StatusCode: rc.CachedResponse.StatusCode,
		Headers:    rc.CachedResponse.Headers,
		Body:       buf,
	}, rc.CachedResponseValidFor)
	if err != nil {
		rc.Log.Warn().Err(&StorageError{Op: "set", Err: err}).Str("key", rc.CacheKey).Msg("cache commit failed")
		return
	}
	rc.Log.Trace().Str("key", rc.CacheKey).Dur("ttl", rc.CachedResponseValidFor).Msg("committed cache entry")
}

func durationMax(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
