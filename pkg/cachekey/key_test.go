package cachekey

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestCreateBaseKeyDeterministic(t *testing.T) {
	id := Identity{Method: "GET", Scheme: "https", Host: "example.com", Path: "/a"}
	k1 := CreateBaseKey(Options{}, id)
	k2 := CreateBaseKey(Options{}, id)
	if k1 != k2 {
		t.Fatalf("expected same base key, got %q and %q", k1, k2)
	}
}

func TestCreateBaseKeyCaseSensitivity(t *testing.T) {
	id := Identity{Method: "GET", Scheme: "https", Host: "example.com", Path: "/MixedCase"}
	preserved := CreateBaseKey(Options{CaseSensitivePaths: true}, id)
	if preserved == "" || !strings.Contains(preserved, "/MixedCase") {
		t.Fatalf("expected preserved case path, got %q", preserved)
	}
	normalized := CreateBaseKey(Options{CaseSensitivePaths: false}, id)
	if strings.Contains(normalized, "/MixedCase") {
		t.Fatalf("expected upper-cased path, got %q", normalized)
	}
}

func TestCreateVaryByKeyOrderIndependent(t *testing.T) {
	id := Identity{Method: "GET", Scheme: "https", Host: "example.com", Path: "/b"}

	header1 := http.Header{}
	header1.Add("Accept-Language", "en")
	header1.Add("Accept-Language", "fr")
	header2 := http.Header{}
	header2.Add("Accept-Language", "fr")
	header2.Add("Accept-Language", "en")

	q := url.Values{}

	k1 := CreateVaryByKey(Options{}, id, header1, q, []string{"Accept-Language"}, nil, nil)
	k2 := CreateVaryByKey(Options{}, id, header2, q, []string{"Accept-Language"}, nil, nil)
	if k1 != k2 {
		t.Fatalf("expected order-independent keys, got %q and %q", k1, k2)
	}
}

func TestCreateVaryByKeyDiffersOnValue(t *testing.T) {
	id := Identity{Method: "GET", Scheme: "https", Host: "example.com", Path: "/b"}

	en := http.Header{"Accept-Language": {"en"}}
	fr := http.Header{"Accept-Language": {"fr"}}
	q := url.Values{}

	k1 := CreateVaryByKey(Options{}, id, en, q, []string{"Accept-Language"}, nil, nil)
	k2 := CreateVaryByKey(Options{}, id, fr, q, []string{"Accept-Language"}, nil, nil)
	if k1 == k2 {
		t.Fatalf("expected different keys for different Accept-Language, got %q", k1)
	}
}

func TestCreateVaryByKeyQueryKeyOrderIndependent(t *testing.T) {
	id := Identity{Method: "GET", Scheme: "https", Host: "example.com", Path: "/c"}
	header := http.Header{}

	q := url.Values{"a": {"1"}, "b": {"2"}}
	k1 := CreateVaryByKey(Options{}, id, header, q, nil, []string{"a", "b"}, nil)
	k2 := CreateVaryByKey(Options{}, id, header, q, nil, []string{"b", "a"}, nil)
	if k1 != k2 {
		t.Fatalf("expected query key order independence, got %q and %q", k1, k2)
	}
}

func TestCreateVaryByKeyCustomDimensions(t *testing.T) {
	id := Identity{Method: "GET", Scheme: "https", Host: "example.com", Path: "/d"}
	header := http.Header{}
	q := url.Values{}

	custom1 := map[string]string{"tenant": "acme", "region": "us"}
	custom2 := map[string]string{"region": "us", "tenant": "acme"}

	k1 := CreateVaryByKey(Options{}, id, header, q, nil, nil, custom1)
	k2 := CreateVaryByKey(Options{}, id, header, q, nil, nil, custom2)
	if k1 != k2 {
		t.Fatalf("expected map iteration order independence, got %q and %q", k1, k2)
	}
}

func TestCreateVaryByKeyFallsBackToBaseWhenEmpty(t *testing.T) {
	id := Identity{Method: "GET", Scheme: "https", Host: "example.com", Path: "/e"}
	base := CreateBaseKey(Options{}, id)
	vary := CreateVaryByKey(Options{}, id, http.Header{}, url.Values{}, nil, nil, nil)
	if base != vary {
		t.Fatalf("expected vary-by key to equal base key when no rules active, got %q vs %q", base, vary)
	}
}
