package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/facetrace-ai/facetrace/pkg/cache"
	"github.com/facetrace-ai/facetrace/pkg/fingerprint"
	"github.com/facetrace-ai/facetrace/pkg/models"
)

// Store is a result cache backed by SQLite. Exact lookups go through the
// primary key; similarity lookups scan live successful entries and compute
// Hamming distances in process.
type Store struct {
	db     *sql.DB
	policy cache.Policy
	hits   atomic.Int64
	misses atomic.Int64
}

const createResultTable = `
CREATE TABLE IF NOT EXISTS result_cache (
	exact_key       TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	artifact        BLOB,
	content_type    TEXT NOT NULL DEFAULT '',
	meta            TEXT,
	failure_message TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	expires_at      DATETIME NOT NULL,
	last_accessed   DATETIME NOT NULL,
	hit_count       INTEGER NOT NULL DEFAULT 0,
	processing_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_result_expires ON result_cache(expires_at);
`

// New opens (or creates) the cache database and runs auto-migration.
func New(dbPath string, policy cache.Policy) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createResultTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	// Add the perceptual key column to databases created before similarity
	// lookups existed.
	if !columnExists(db, "result_cache", "perceptual_key") {
		if _, err := db.Exec(`ALTER TABLE result_cache ADD COLUMN perceptual_key TEXT NOT NULL DEFAULT ''`); err != nil {
			db.Close()
			return nil, fmt.Errorf("add perceptual_key column: %w", err)
		}
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_result_perceptual ON result_cache(status, perceptual_key)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("index perceptual keys: %w", err)
	}

	return &Store{db: db, policy: policy}, nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

// GetByExactKey retrieves the entry stored under an exact key. Absent and
// expired entries both return cache.ErrNotFound.
func (s *Store) GetByExactKey(ctx context.Context, exactKey string) (*models.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT exact_key, perceptual_key, status, artifact, content_type, meta,
		        failure_message, created_at, expires_at, last_accessed, hit_count, processing_ms
		 FROM result_cache WHERE exact_key = ?`, exactKey)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	if !s.policy.IsLive(entry, time.Now()) {
		s.misses.Add(1)
		return nil, cache.ErrNotFound
	}

	s.hits.Add(1)
	return entry, nil
}

// Put inserts or replaces the entry stored under its exact key. Pending
// entries are coordinator-local and are rejected.
func (s *Store) Put(ctx context.Context, entry *models.CacheEntry) error {
	if entry.Status != models.StatusSuccess && entry.Status != models.StatusFailure {
		return fmt.Errorf("cache put: refusing to store %q entry", entry.Status)
	}

	var artifact []byte
	var contentType string
	var meta sql.NullString
	if entry.Payload != nil {
		artifact = entry.Payload.Artifact
		contentType = entry.Payload.ContentType
		if len(entry.Payload.Meta) > 0 {
			b, err := json.Marshal(entry.Payload.Meta)
			if err != nil {
				return fmt.Errorf("cache put: marshal meta: %w", err)
			}
			meta = sql.NullString{String: string(b), Valid: true}
		}
	}

	// Timestamps are stored in UTC so that the text comparisons in the
	// sweep and scan queries stay consistent.
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO result_cache
		 (exact_key, perceptual_key, status, artifact, content_type, meta,
		  failure_message, created_at, expires_at, last_accessed, hit_count, processing_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ExactKey, entry.PerceptualKey, string(entry.Status),
		artifact, contentType, meta, entry.FailureMessage,
		entry.CreatedAt.UTC(), entry.ExpiresAt.UTC(), entry.LastAccessed.UTC(),
		entry.HitCount, entry.ProcessingMs,
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// FindSimilar scans live successful entries and returns those whose
// perceptual keys are within maxDistance bits of the query key, ordered by
// distance ascending, then creation time descending. Keys of a different
// width are incomparable and never match.
func (s *Store) FindSimilar(ctx context.Context, perceptualKey string, maxDistance int) ([]cache.Candidate, error) {
	if perceptualKey == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT exact_key, perceptual_key, status, artifact, content_type, meta,
		        failure_message, created_at, expires_at, last_accessed, hit_count, processing_ms
		 FROM result_cache
		 WHERE status = ? AND perceptual_key != '' AND expires_at > ?`,
		string(models.StatusSuccess), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("cache scan: %w", err)
	}
	defer rows.Close()

	var candidates []cache.Candidate
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("cache scan row: %w", err)
		}
		d, err := fingerprint.Distance(perceptualKey, entry.PerceptualKey)
		if err != nil {
			continue
		}
		if d <= maxDistance {
			candidates = append(candidates, cache.Candidate{Entry: entry, Distance: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache scan: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Entry.CreatedAt.After(candidates[j].Entry.CreatedAt)
	})
	return candidates, nil
}

// IncrementHit bumps the hit counter and refreshes the last-access time.
// A key swept between lookup and increment is not an error.
func (s *Store) IncrementHit(ctx context.Context, exactKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE result_cache SET hit_count = hit_count + 1, last_accessed = ? WHERE exact_key = ?`,
		time.Now().UTC(), exactKey)
	if err != nil {
		return fmt.Errorf("cache increment: %w", err)
	}
	return nil
}

// SweepExpired deletes expired entries, stale failures, and entries that
// never saw a hit past the stale retention window. Returns the number of
// rows removed.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM result_cache
		 WHERE expires_at <= ?
		    OR (status = ? AND created_at < ?)
		    OR (hit_count = 0 AND created_at < ?)`,
		now, string(models.StatusFailure),
		now.Add(-s.policy.FailureRetention),
		now.Add(-s.policy.StaleRetention),
	)
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns aggregate contents plus process-local lookup counters.
func (s *Store) Stats(ctx context.Context) (models.CacheStats, error) {
	var st models.CacheStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(hit_count), 0),
		        COALESCE(SUM(LENGTH(artifact)), 0),
		        COALESCE(AVG(processing_ms), 0)
		 FROM result_cache`,
		time.Now().UTC(), string(models.StatusSuccess), string(models.StatusFailure),
	).Scan(&st.Entries, &st.Live, &st.Successes, &st.Failures,
		&st.StoredHits, &st.ArtifactBytes, &st.MeanProcessingMs)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}

	st.Expired = st.Entries - st.Live
	st.LookupHits = s.hits.Load()
	st.LookupMisses = s.misses.Load()
	return st, nil
}

// Recent returns summaries of the most recently created entries.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.EntrySummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT exact_key, perceptual_key, status, failure_message,
		        created_at, expires_at, last_accessed, hit_count, processing_ms,
		        COALESCE(LENGTH(artifact), 0)
		 FROM result_cache ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("cache recent: %w", err)
	}
	defer rows.Close()

	var out []models.EntrySummary
	for rows.Next() {
		var e models.EntrySummary
		var status string
		var failureMessage sql.NullString
		if err := rows.Scan(&e.ExactKey, &e.PerceptualKey, &status, &failureMessage,
			&e.CreatedAt, &e.ExpiresAt, &e.LastAccessed, &e.HitCount, &e.ProcessingMs,
			&e.ArtifactBytes); err != nil {
			return nil, fmt.Errorf("scan cache summary: %w", err)
		}
		e.Status = models.EntryStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear removes cache entries. If expiredOnly is true, only expired and
// reclaimable entries are removed.
func (s *Store) Clear(ctx context.Context, expiredOnly bool) (int64, error) {
	if expiredOnly {
		return s.SweepExpired(ctx)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM result_cache`)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.CacheEntry, error) {
	var e models.CacheEntry
	var status string
	var artifact []byte
	var contentType string
	var meta sql.NullString
	var failureMessage sql.NullString

	err := row.Scan(&e.ExactKey, &e.PerceptualKey, &status, &artifact, &contentType,
		&meta, &failureMessage, &e.CreatedAt, &e.ExpiresAt, &e.LastAccessed,
		&e.HitCount, &e.ProcessingMs)
	if err != nil {
		return nil, err
	}

	e.Status = models.EntryStatus(status)
	e.FailureMessage = failureMessage.String
	if e.Status == models.StatusSuccess {
		p := &models.Payload{Artifact: artifact, ContentType: contentType}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &p.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal meta: %w", err)
			}
		}
		e.Payload = p
	}
	return &e, nil
}
