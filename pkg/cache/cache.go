package cache

import (
	"context"
	"errors"

	"github.com/facetrace-ai/facetrace/pkg/models"
)

// ErrNotFound reports that no live entry exists for a key. Absent entries
// and expired entries are indistinguishable to callers.
var ErrNotFound = errors.New("cache: entry not found")

// Candidate is one similarity-scan result: a live successful entry together
// with its Hamming distance from the query key.
type Candidate struct {
	Entry    *models.CacheEntry
	Distance int
}

// Store is a durable map of exact key to cache entry with a secondary
// lookup over perceptual keys.
type Store interface {
	// GetByExactKey returns the live entry stored under an exact key, or
	// ErrNotFound when the key is absent or the entry has expired.
	GetByExactKey(ctx context.Context, exactKey string) (*models.CacheEntry, error)
	// Put inserts or replaces the entry stored under its exact key.
	// Entries in the pending state are rejected.
	Put(ctx context.Context, entry *models.CacheEntry) error
	// FindSimilar returns live successful entries whose perceptual keys are
	// within maxDistance bits of the query key, ordered by distance
	// ascending, then creation time descending.
	FindSimilar(ctx context.Context, perceptualKey string, maxDistance int) ([]Candidate, error)
	// IncrementHit atomically bumps the hit counter for an exact key and
	// refreshes its last-access time.
	IncrementHit(ctx context.Context, exactKey string) error
	// SweepExpired deletes expired and reclaimable entries and returns the
	// number removed.
	SweepExpired(ctx context.Context) (int64, error)
	// Stats returns aggregate cache statistics.
	Stats(ctx context.Context) (models.CacheStats, error)
	// Recent returns summaries of the most recently created entries,
	// newest first.
	Recent(ctx context.Context, limit int) ([]models.EntrySummary, error)
	// Clear removes entries outright. With expiredOnly set, only expired
	// and reclaimable entries are removed.
	Clear(ctx context.Context, expiredOnly bool) (int64, error)
	// Close releases the underlying storage handle.
	Close() error
}
