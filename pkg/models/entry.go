package models

import "time"

// EntryStatus is the lifecycle state of a cache entry.
type EntryStatus string

const (
	// StatusPending marks an in-flight computation. It exists only inside
	// the coordinator and is never written to the durable store.
	StatusPending EntryStatus = "pending"
	StatusSuccess EntryStatus = "success"
	StatusFailure EntryStatus = "failure"
)

// Payload is the opaque render result: the artifact bytes plus the
// structured side-channel data the renderer produced alongside it.
type Payload struct {
	Artifact    []byte            `json:"artifact"`
	ContentType string            `json:"content_type"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// CacheEntry is one stored render result, keyed by its exact request digest.
type CacheEntry struct {
	ExactKey       string      `json:"exact_key"`
	PerceptualKey  string      `json:"perceptual_key,omitempty"`
	Status         EntryStatus `json:"status"`
	Payload        *Payload    `json:"payload,omitempty"`
	FailureMessage string      `json:"failure_message,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
	LastAccessed   time.Time   `json:"last_accessed"`
	HitCount       int64       `json:"hit_count"`
	ProcessingMs   int64       `json:"processing_ms"`
}

// EntrySummary is a lightweight view of a cache entry without its payload.
type EntrySummary struct {
	ExactKey      string      `json:"exact_key"`
	PerceptualKey string      `json:"perceptual_key,omitempty"`
	Status        EntryStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	ExpiresAt     time.Time   `json:"expires_at"`
	LastAccessed  time.Time   `json:"last_accessed"`
	HitCount      int64       `json:"hit_count"`
	ProcessingMs  int64       `json:"processing_ms"`
	ArtifactBytes int64       `json:"artifact_bytes"`
}

// CacheStats reports durable store contents and process-local lookup counters.
type CacheStats struct {
	Entries          int64   `json:"entries"`
	Live             int64   `json:"live"`
	Expired          int64   `json:"expired"`
	Successes        int64   `json:"successes"`
	Failures         int64   `json:"failures"`
	StoredHits       int64   `json:"stored_hits"`
	ArtifactBytes    int64   `json:"artifact_bytes"`
	MeanProcessingMs float64 `json:"mean_processing_ms"`
	LookupHits       int64   `json:"lookup_hits"`
	LookupMisses     int64   `json:"lookup_misses"`
}
