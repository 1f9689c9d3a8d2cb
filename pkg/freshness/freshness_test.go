package freshness

import (
	"net/http"
	"testing"
	"time"
)

func TestParseCacheControl(t *testing.T) {
	cc := ParseCacheControl([]string{"public, max-age=60"})
	if !cc.Has("public") {
		t.Fatalf("expected public directive")
	}
	if v, ok := cc.MaxAge(); !ok || v != 60*time.Second {
		t.Fatalf("expected max-age=60s, got %v %v", v, ok)
	}
}

func TestIsCacheableRequiresPublic(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "max-age=60")
	if IsCacheable(http.StatusOK, h, time.Now()) {
		t.Fatalf("expected not cacheable without public")
	}
}

func TestIsCacheableRejectsNoStore(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "public, no-store")
	if IsCacheable(http.StatusOK, h, time.Now()) {
		t.Fatalf("expected not cacheable with no-store")
	}
}

func TestIsCacheableRejectsSetCookie(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "public, max-age=60")
	h.Set("Set-Cookie", "a=b")
	if IsCacheable(http.StatusOK, h, time.Now()) {
		t.Fatalf("expected not cacheable with Set-Cookie")
	}
}

func TestIsCacheableRejectsBareVaryStar(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "public, max-age=60")
	h.Set("Vary", "*")
	if IsCacheable(http.StatusOK, h, time.Now()) {
		t.Fatalf("expected not cacheable with Vary: *")
	}
}

func TestIsCacheableAcceptsPublicMaxAge(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "public, max-age=60")
	if !IsCacheable(http.StatusOK, h, time.Now()) {
		t.Fatalf("expected cacheable")
	}
}

func TestValidForPrefersSMaxAge(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "public, max-age=60, s-maxage=120")
	if got := ValidFor(h, time.Now(), 0); got != 120*time.Second {
		t.Fatalf("expected 120s, got %v", got)
	}
}

func TestValidForFallsBackToDefault(t *testing.T) {
	h := http.Header{}
	if got := ValidFor(h, time.Now(), 60*time.Second); got != 60*time.Second {
		t.Fatalf("expected default 60s, got %v", got)
	}
}

func TestIsFreshWithinMaxAge(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "public, max-age=60")
	if !IsFresh(h, 30*time.Second, http.Header{}) {
		t.Fatalf("expected fresh at 30s of 60s")
	}
	if IsFresh(h, 90*time.Second, http.Header{}) {
		t.Fatalf("expected not fresh at 90s of 60s")
	}
}

func TestIsFreshMustRevalidateForbidsStale(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "public, max-age=60, must-revalidate")
	req := http.Header{}
	req.Set("Cache-Control", "max-stale")
	if IsFresh(h, 90*time.Second, req) {
		t.Fatalf("expected must-revalidate to forbid stale even with max-stale")
	}
}

func TestIsFreshHonorsMaxStale(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "public, max-age=60")
	req := http.Header{}
	req.Set("Cache-Control", "max-stale=30")
	if !IsFresh(h, 80*time.Second, req) {
		t.Fatalf("expected fresh within max-stale window")
	}
	if IsFresh(h, 200*time.Second, req) {
		t.Fatalf("expected not fresh outside max-stale window")
	}
}

func TestConditionalMatchIfNoneMatchStar(t *testing.T) {
	req := http.Header{}
	req.Set("If-None-Match", "*")
	if !ConditionalMatch(req, http.Header{}) {
		t.Fatalf("expected match for If-None-Match: *")
	}
}

func TestConditionalMatchETag(t *testing.T) {
	req := http.Header{}
	req.Set("If-None-Match", `"v1", "v2"`)
	cached := http.Header{}
	cached.Set("ETag", `"v1"`)
	if !ConditionalMatch(req, cached) {
		t.Fatalf("expected ETag match")
	}
}

func TestConditionalMatchETagWeak(t *testing.T) {
	req := http.Header{}
	req.Set("If-None-Match", `W/"v1"`)
	cached := http.Header{}
	cached.Set("ETag", `"v1"`)
	if !ConditionalMatch(req, cached) {
		t.Fatalf("expected weak ETag match")
	}
}

func TestConditionalMatchIfModifiedSince(t *testing.T) {
	req := http.Header{}
	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	req.Set("If-Modified-Since", past)
	cached := http.Header{}
	cached.Set("Last-Modified", time.Now().Add(-2*time.Hour).UTC().Format(http.TimeFormat))
	if !ConditionalMatch(req, cached) {
		t.Fatalf("expected match when last-modified is before if-modified-since")
	}
}

func TestConditionalMatchNoPrecondition(t *testing.T) {
	if ConditionalMatch(http.Header{}, http.Header{}) {
		t.Fatalf("expected no match with no precondition headers")
	}
}
