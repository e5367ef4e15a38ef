package cache

import (
	"time"

	"github.com/facetrace-ai/facetrace/pkg/models"
)

// Policy decides entry liveness and reclamation from entry metadata and a
// clock reading. Both predicates are pure, so backends may evaluate them in
// Go or translate them into query conditions.
type Policy struct {
	// FailureRetention bounds how long a cached failure is kept before the
	// sweep may delete it, independent of its TTL.
	FailureRetention time.Duration
	// StaleRetention bounds how long an entry that never saw a hit is kept.
	StaleRetention time.Duration
}

// IsLive reports whether the entry may still be served. Lookups filter on
// this regardless of whether a sweep has run.
func (p Policy) IsLive(e *models.CacheEntry, now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// IsReclaimable reports whether the periodic sweep may delete the entry:
// failures past the failure retention window, and entries without a single
// hit past the stale retention window.
func (p Policy) IsReclaimable(e *models.CacheEntry, now time.Time) bool {
	age := now.Sub(e.CreatedAt)
	if e.Status == models.StatusFailure && age > p.FailureRetention {
		return true
	}
	return e.HitCount == 0 && age > p.StaleRetention
}
