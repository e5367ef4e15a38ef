package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/facetrace-ai/facetrace/pkg/cache"
	"github.com/facetrace-ai/facetrace/pkg/fingerprint"
	"github.com/facetrace-ai/facetrace/pkg/flight"
	"github.com/facetrace-ai/facetrace/pkg/metrics"
	"github.com/facetrace-ai/facetrace/pkg/models"
)

// Processor computes an artifact when no cached result can serve a request.
// It is expected to be deterministic: the same request must produce an
// equivalent payload, or reuse would hand back wrong results.
type Processor interface {
	Process(ctx context.Context, req *models.RenderRequest) (*models.Payload, error)
}

// Options tune the resolver's cache behavior.
type Options struct {
	// TTLSuccess is the lifetime of stored successful results.
	TTLSuccess time.Duration
	// TTLFailure is the lifetime of stored failures, usually much shorter
	// so transient errors clear themselves.
	TTLFailure time.Duration
	// SimilarityThreshold is the maximum Hamming distance, in bits, at
	// which two perceptual keys still count as the same visual content.
	SimilarityThreshold int
}

const (
	defaultTTLSuccess = 24 * time.Hour
	defaultTTLFailure = time.Hour
	defaultThreshold  = 10
)

// Resolver drives the lookup protocol for render requests: exact match,
// then perceptual similarity, then a fresh computation, with concurrent
// requests for the same exact key collapsed into one in-flight computation.
type Resolver struct {
	engine    *fingerprint.Engine
	store     cache.Store
	processor Processor
	recorder  *metrics.Recorder
	logger    *log.Logger
	opts      Options
	group     flight.Group[*models.Resolution]
}

// New creates a Resolver. A nil recorder disables metrics; zero options
// fall back to defaults.
func New(engine *fingerprint.Engine, store cache.Store, processor Processor, recorder *metrics.Recorder, opts Options) *Resolver {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.TTLSuccess <= 0 {
		opts.TTLSuccess = defaultTTLSuccess
	}
	if opts.TTLFailure <= 0 {
		opts.TTLFailure = defaultTTLFailure
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = defaultThreshold
	}
	return &Resolver{
		engine:    engine,
		store:     store,
		processor: processor,
		recorder:  recorder,
		logger:    log.With("component", "resolver"),
		opts:      opts,
	}
}

// Resolve returns the cached or freshly computed result for a request.
//
// Failure outcomes carry both a Resolution describing where the failure
// came from and the failure itself as the error. A key derivation error is
// fatal to the request and returns a nil Resolution; nothing is cached.
func (r *Resolver) Resolve(ctx context.Context, req *models.RenderRequest) (*models.Resolution, error) {
	exactKey, err := r.engine.ExactKey(req)
	if err != nil {
		return nil, err
	}

	perceptualKey, err := r.engine.PerceptualKey(req.Image)
	if err != nil {
		// Degrade to the exact-only path.
		r.logger.Debug("Perceptual key unavailable", "error", err)
		perceptualKey = ""
	}

	res, shared, err := r.group.Do(ctx, exactKey, func(ctx context.Context) (*models.Resolution, error) {
		return r.resolve(ctx, req, exactKey, perceptualKey)
	})
	if shared {
		r.logger.Debug("Joined in-flight computation", "exact_key", exactKey)
	}
	return res, err
}

// resolve is the leader computation: it runs at most once per exact key at
// any moment, so it alone may write a fresh entry for that key.
func (r *Resolver) resolve(ctx context.Context, req *models.RenderRequest, exactKey, perceptualKey string) (*models.Resolution, error) {
	entry, err := r.store.GetByExactKey(ctx, exactKey)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		// The cache is best effort: a broken store degrades to a miss.
		r.logger.Warn("Cache read failed, treating as miss", "error", err)
	}
	if err == nil {
		switch entry.Status {
		case models.StatusSuccess:
			if err := r.store.IncrementHit(ctx, exactKey); err != nil {
				r.logger.Warn("Hit count increment failed", "exact_key", exactKey, "error", err)
			}
			r.recorder.ExactHit(ctx)
			return &models.Resolution{
				Outcome:      models.OutcomeExactHit,
				Payload:      entry.Payload,
				Distance:     -1,
				Cached:       true,
				ExactKey:     exactKey,
				ProcessingMs: entry.ProcessingMs,
			}, nil

		case models.StatusFailure:
			r.recorder.CachedFailure(ctx)
			return &models.Resolution{
				Outcome:      models.OutcomeCachedFailure,
				Distance:     -1,
				Cached:       true,
				ExactKey:     exactKey,
				ProcessingMs: entry.ProcessingMs,
			}, errors.New(entry.FailureMessage)
		}
	}

	if perceptualKey != "" {
		if res := r.resolveSimilar(ctx, exactKey, perceptualKey); res != nil {
			return res, nil
		}
	}

	return r.compute(ctx, req, exactKey, perceptualKey)
}

// resolveSimilar scans for a visually equivalent result. On a match it
// stores a new entry under the current exact key pointing at the matched
// payload, so future exact repeats of this request are instant.
func (r *Resolver) resolveSimilar(ctx context.Context, exactKey, perceptualKey string) *models.Resolution {
	candidates, err := r.store.FindSimilar(ctx, perceptualKey, r.opts.SimilarityThreshold)
	if err != nil {
		r.logger.Warn("Similarity scan failed, treating as miss", "error", err)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	if err := r.store.IncrementHit(ctx, best.Entry.ExactKey); err != nil {
		r.logger.Warn("Hit count increment failed", "exact_key", best.Entry.ExactKey, "error", err)
	}

	now := time.Now().UTC()
	writeBack := &models.CacheEntry{
		ExactKey:      exactKey,
		PerceptualKey: perceptualKey,
		Status:        models.StatusSuccess,
		Payload:       best.Entry.Payload,
		CreatedAt:     now,
		ExpiresAt:     now.Add(r.opts.TTLSuccess),
		LastAccessed:  now,
		ProcessingMs:  best.Entry.ProcessingMs,
	}
	if err := r.store.Put(ctx, writeBack); err != nil {
		r.logger.Warn("Cache write failed", "exact_key", exactKey, "error", err)
	}

	r.recorder.PerceptualHit(ctx, best.Distance)
	r.logger.Debug("Perceptual hit",
		"exact_key", exactKey, "matched", best.Entry.ExactKey, "distance", best.Distance)
	return &models.Resolution{
		Outcome:      models.OutcomePerceptualHit,
		Payload:      best.Entry.Payload,
		Distance:     best.Distance,
		Cached:       true,
		ExactKey:     exactKey,
		ProcessingMs: best.Entry.ProcessingMs,
	}
}

// compute invokes the processor and stores the outcome, success or failure.
// Store write errors are logged but never mask the freshly computed result.
func (r *Resolver) compute(ctx context.Context, req *models.RenderRequest, exactKey, perceptualKey string) (*models.Resolution, error) {
	r.recorder.Miss(ctx)

	start := time.Now()
	payload, perr := r.processor.Process(ctx, req)
	elapsed := time.Since(start)
	r.recorder.RenderDuration(ctx, elapsed)

	now := time.Now().UTC()
	if perr != nil {
		failure := &models.CacheEntry{
			ExactKey:       exactKey,
			PerceptualKey:  perceptualKey,
			Status:         models.StatusFailure,
			FailureMessage: perr.Error(),
			CreatedAt:      now,
			ExpiresAt:      now.Add(r.opts.TTLFailure),
			LastAccessed:   now,
			ProcessingMs:   elapsed.Milliseconds(),
		}
		if err := r.store.Put(ctx, failure); err != nil {
			r.logger.Warn("Cache write failed", "exact_key", exactKey, "error", err)
		}
		return &models.Resolution{
			Outcome:      models.OutcomeComputedFailure,
			Distance:     -1,
			ExactKey:     exactKey,
			ProcessingMs: elapsed.Milliseconds(),
		}, perr
	}

	success := &models.CacheEntry{
		ExactKey:      exactKey,
		PerceptualKey: perceptualKey,
		Status:        models.StatusSuccess,
		Payload:       payload,
		CreatedAt:     now,
		ExpiresAt:     now.Add(r.opts.TTLSuccess),
		LastAccessed:  now,
		ProcessingMs:  elapsed.Milliseconds(),
	}
	if err := r.store.Put(ctx, success); err != nil {
		r.logger.Warn("Cache write failed", "exact_key", exactKey, "error", err)
	}

	return &models.Resolution{
		Outcome:      models.OutcomeComputed,
		Payload:      payload,
		Distance:     -1,
		ExactKey:     exactKey,
		ProcessingMs: elapsed.Milliseconds(),
	}, nil
}
