package models

// Outcome is the terminal state of one resolve: where the result came from.
type Outcome string

const (
	OutcomeExactHit        Outcome = "exact_hit"
	OutcomePerceptualHit   Outcome = "perceptual_hit"
	OutcomeComputed        Outcome = "computed"
	OutcomeComputedFailure Outcome = "computed_failure"
	OutcomeCachedFailure   Outcome = "cached_failure"
)

// Resolution is the result of resolving one render request through the
// cache. On failure outcomes Payload is nil and the accompanying error
// carries the failure; Cached reports whether the failure was replayed
// from the store rather than produced by this request.
type Resolution struct {
	Outcome Outcome  `json:"outcome"`
	Payload *Payload `json:"payload,omitempty"`
	// Distance is the Hamming distance of a perceptual hit, -1 otherwise.
	Distance     int    `json:"distance"`
	Cached       bool   `json:"cached"`
	ExactKey     string `json:"exact_key"`
	ProcessingMs int64  `json:"processing_ms"`
}
