// Package config loads output-cache tuning options from a YAML file.
//
// Grounded directly on always-cache's config.go (Config/ConfigOrigin/
// getConfig), generalized from origin/rule configuration to the tunable
// options a caching middleware needs at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Options holds the tunable configuration options.
type Options struct {
	// SizeLimit is the maximum total cached bytes across all entries.
	// Zero means unbounded.
	SizeLimit int `yaml:"sizeLimit"`
	// MaximumBodySize is the per-response capture ceiling.
	MaximumBodySize int `yaml:"maximumBodySize"`
	// DefaultExpirationTimeSpan is the fallback TTL, in time.ParseDuration
	// form (e.g. "30s"), used when a cacheable response carries no explicit
	// freshness information.
	DefaultExpirationTimeSpan string `yaml:"defaultExpirationTimeSpan"`
	// UseCaseSensitivePaths controls whether the request path contributes
	// to the cache key case-sensitively (default true: preserve).
	UseCaseSensitivePaths bool `yaml:"useCaseSensitivePaths"`
	// SQLitePath, if set, selects the persistent SQLite storage backend
	// instead of the in-memory reference backend.
	SQLitePath string `yaml:"sqlitePath"`

	// DefaultExpiration is DefaultExpirationTimeSpan parsed by Load.
	DefaultExpiration time.Duration `yaml:"-"`
}

// Load reads and parses a YAML options file.
func Load(filename string) (Options, error) {
	opts := Options{UseCaseSensitivePaths: true}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return opts, err
	}
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return opts, err
	}
	if opts.DefaultExpirationTimeSpan != "" {
		d, err := time.ParseDuration(opts.DefaultExpirationTimeSpan)
		if err != nil {
			return opts, fmt.Errorf("defaultExpirationTimeSpan: %w", err)
		}
		opts.DefaultExpiration = d
	}
	return opts, nil
}
