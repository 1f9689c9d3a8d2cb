package outputcache

import (
	"net/http"

	"github.com/outputcache/outputcache/pkg/freshness"
)

// Policy classifies requests and responses for the middleware core. Hooks
// mutate the shared RequestContext instead of returning values so that
// multiple policies can compose.
type Policy interface {
	// OnRequest sets AttemptCaching, AllowLookup, AllowStorage. Strictly
	// precedes any lookup or capture.
	OnRequest(rc *RequestContext)
	// OnServeFromCache may mutate freshness-related flags before a hit is
	// served. Strictly precedes serving a hit.
	OnServeFromCache(rc *RequestContext)
	// OnServeResponse may revise IsResponseCacheable. Strictly precedes
	// header finalization.
	OnServeResponse(rc *RequestContext)
}

// DefaultPolicy implements the default cacheability and
// eligibility rules.
//
// Grounded on always-cache's rfc9111 package (ParseCacheControl,
// freshness-lifetime precedence) via pkg/freshness; the eligibility rules in
// OnRequest (safe methods only, request no-store/no-cache) follow RFC 9111
// §5.2's request-directive semantics the same way always-cache's
// ConstructReusableResponse/ConstructDownstreamResponse pair does, adapted
// to a forward/edge cache with no upstream revalidation.
type DefaultPolicy struct{}

func (DefaultPolicy) OnRequest(rc *RequestContext) {
	method := rc.Request.Method
	if method != http.MethodGet && method != http.MethodHead {
		rc.AttemptCaching = false
		return
	}

	cc := freshness.ParseCacheControl(rc.Request.Header.Values("Cache-Control"))
	if cc.Has("no-store") {
		rc.AttemptCaching = false
		return
	}

	rc.AttemptCaching = true
	// This is a forward/edge cache, not a validating proxy: a request's
	// no-cache directive asks for revalidation with the origin, which this
	// middleware cannot do, so it skips the lookup entirely rather than
	// serving a response it cannot validate.
	rc.AllowLookup = !cc.Has("no-cache")
	rc.AllowStorage = true
}

func (DefaultPolicy) OnServeFromCache(rc *RequestContext) {}

func (DefaultPolicy) OnServeResponse(rc *RequestContext) {
	rc.IsResponseCacheable = freshness.IsCacheable(rc.StatusCode(), rc.Response.Header(), rc.ResponseTime)
}
