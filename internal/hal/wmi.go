// Package hal — wmi.go
//
// WMI query cache. Results are cached by (namespace, query) with a
// per-entry TTL (default 5 min, overridable per call, ttl=0 bypasses the
// cache). A background sweep evicts expired entries (§4.A).
//
// Implementation uses github.com/patrickmn/go-cache, whose own janitor
// goroutine performs the background sweep — configuring its interval to
// match the spec's "every 60 s" requirement rather than hand-rolling a
// second sweep loop.
package hal

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Record is one row of a WMI query result. Vendor-specific object shapes
// are treated as opaque (spec "out of scope"); callers interpret Fields.
type Record struct {
	Fields map[string]any
}

// QueryFunc performs the actual (uncached) WMI call.
type QueryFunc func(namespace, query string) ([]Record, error)

// WMI wraps a query function with a TTL cache keyed on (namespace, query).
type WMI struct {
	cache   *gocache.Cache
	query   QueryFunc
	defTTL  time.Duration
}

// NewWMI creates a WMI cache. defaultTTL is used when a call passes
// ttl<0 (meaning "use default"); sweepInterval configures the janitor.
func NewWMI(query QueryFunc, defaultTTL, sweepInterval time.Duration) *WMI {
	return &WMI{
		cache:  gocache.New(defaultTTL, sweepInterval),
		query:  query,
		defTTL: defaultTTL,
	}
}

// Query runs a WMI query, consulting the cache first unless ttl == 0
// (bypass). ttl < 0 means "use the configured default TTL".
func (w *WMI) Query(namespace, query string, ttl time.Duration) ([]Record, error) {
	key := namespace + "\x00" + query

	if ttl != 0 {
		if cached, ok := w.cache.Get(key); ok {
			return cached.([]Record), nil
		}
	}

	records, err := w.query(namespace, query)
	if err != nil {
		return nil, newErr(KindHwTransient, "wmi.Query", err)
	}

	if ttl != 0 {
		effective := ttl
		if ttl < 0 {
			effective = w.defTTL
		}
		w.cache.Set(key, records, effective)
	}
	return records, nil
}

// Purge clears the entire cache, including entries whose TTL has not
// yet elapsed.
func (w *WMI) Purge() {
	w.cache.Flush()
}
