package outputcache

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// VaryByRules describe the tuple of request headers, query keys, and custom
// dimensions that segment the cache namespace for a given resource (see
// the Vary-by rules glossary entry). Headers and QueryKeys are kept in
// the order the policy added them; the key provider is responsible for
// canonicalizing that order away (see pkg/cachekey).
type VaryByRules struct {
	Prefix    string
	Headers   []string
	QueryKeys []string
	Custom    map[string]string
}

// AddHeader appends a header name to vary by, if not already present.
func (v *VaryByRules) AddHeader(name string) {
	for _, h := range v.Headers {
		if h == name {
			return
		}
	}
	v.Headers = append(v.Headers, name)
}

// AddQueryKey appends a query key to vary by, if not already present.
func (v *VaryByRules) AddQueryKey(name string) {
	for _, k := range v.QueryKeys {
		if k == name {
			return
		}
	}
	v.QueryKeys = append(v.QueryKeys, name)
}

// SetCustom attaches a custom vary-by dimension.
func (v *VaryByRules) SetCustom(key, value string) {
	if v.Custom == nil {
		v.Custom = make(map[string]string)
	}
	v.Custom[key] = value
}

// IsEmpty reports whether the rules select no additional dimensions, in
// which case the key provider uses the base key form.
func (v *VaryByRules) IsEmpty() bool {
	return v == nil || (len(v.Headers) == 0 && len(v.QueryKeys) == 0 && len(v.Custom) == 0)
}

// CachedResponse is the immutable-once-built snapshot of a captured or
// looked-up response.
type CachedResponse struct {
	Created    time.Time
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// RequestContext is the mutable, single-owner carrier passed to every
// collaborator for the lifetime of one request.
type RequestContext struct {
	Request  *http.Request
	Response http.ResponseWriter

	// Flags set by policy.
	AttemptCaching     bool
	AllowLookup        bool
	AllowStorage       bool
	IsResponseCacheable bool

	CacheKey          string
	CachedVaryByRules VaryByRules
	CachedResponse    *CachedResponse

	ResponseTime           time.Time
	ResponseDate           time.Time
	CachedEntryAge         time.Duration
	CachedResponseValidFor time.Duration

	responseStarted bool

	// originalBody is the response body sink in place before a capture
	// stream was attached, restored on every exit path.
	originalBody http.ResponseWriter
	captured     capturedStreamer

	RequestID string
	Log       zerolog.Logger
}

// capturedStreamer is the minimal surface RequestContext needs from
// pkg/capture.Stream. *capture.Stream satisfies it; RequestContext holds
// this interface rather than the concrete type.
type capturedStreamer interface {
	http.ResponseWriter
	BufferingEnabled() bool
	BufferedBody() []byte
	DisableBuffering()
	StatusCode() int
}

// NewRequestContext builds a per-request carrier with a fresh correlation id.
func NewRequestContext(r *http.Request, w http.ResponseWriter, log zerolog.Logger) *RequestContext {
	id := uuid.NewString()
	return &RequestContext{
		Request:      r,
		Response:     w,
		originalBody: w,
		RequestID:    id,
		Log:          log.With().Str("request_id", id).Logger(),
	}
}

// ResponseStarted reports whether the one-way responseStarted transition has
// already fired.
func (c *RequestContext) ResponseStarted() bool {
	return c.responseStarted
}

// markResponseStarted performs the one-way false->true transition. It is the
// caller's job (Cache.startResponse) to make this idempotent by checking
// ResponseStarted first.
func (c *RequestContext) markResponseStarted() {
	c.responseStarted = true
}

// attachCapture installs the capture stream as the active response writer
// and remembers the original for restoration.
func (c *RequestContext) attachCapture(cs capturedStreamer) {
	c.captured = cs
	c.Response = cs
}

// StatusCode returns the status code written by downstream so far, 200 if
// none has been written yet or no capture stream is attached.
func (c *RequestContext) StatusCode() int {
	if c.captured != nil {
		return c.captured.StatusCode()
	}
	return http.StatusOK
}

// detachCapture restores the original response writer. Safe to call more
// than once and on every exit path, including panics,
// scoped-resource requirement.
func (c *RequestContext) detachCapture() {
	if c.captured != nil {
		c.captured = nil
		c.Response = c.originalBody
	}
}
