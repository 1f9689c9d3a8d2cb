package outputcache

import "context"

// featureMarkerKey is the context key under which the per-request feature
// marker is stored. It exists so downstream handlers can assert that output
// caching is active for the current request without importing this
// package's internals.
type featureMarkerKey struct{}

// WithFeatureMarker returns a context carrying the output-caching feature
// marker.
func WithFeatureMarker(ctx context.Context) context.Context {
	return context.WithValue(ctx, featureMarkerKey{}, true)
}

// HasFeatureMarker reports whether the output-caching middleware is active
// for the given context.
func HasFeatureMarker(ctx context.Context) bool {
	v, _ := ctx.Value(featureMarkerKey{}).(bool)
	return v
}
