package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/facetrace-ai/facetrace/pkg/models"
)

var (
	// ErrEmptyImage is returned when a request carries no image data, so no
	// exact key can be derived. The request fails; nothing is cached.
	ErrEmptyImage = errors.New("fingerprint: empty image data")

	// ErrNoPerceptualKey wraps perceptual hashing failures. Non-fatal:
	// callers skip the perceptual path and keep the exact-match path.
	ErrNoPerceptualKey = errors.New("fingerprint: perceptual key unavailable")

	// ErrKeyWidthMismatch is returned when two perceptual keys were produced
	// with different grid configurations and cannot be compared.
	ErrKeyWidthMismatch = errors.New("fingerprint: perceptual keys have different widths")
)

// DefaultGridSize is the edge length of the retained DCT block. The default
// yields 64-bit perceptual keys.
const DefaultGridSize = 8

// Engine derives both cache keys from a render request: the exact key over
// the full normalized input set, and the perceptual key over image content
// alone.
type Engine struct {
	gridSize int
}

// New creates an Engine. A non-positive grid size falls back to the default.
func New(gridSize int) *Engine {
	if gridSize <= 0 {
		gridSize = DefaultGridSize
	}
	return &Engine{gridSize: gridSize}
}

// KeyBits returns the perceptual key width in bits for this configuration.
func (e *Engine) KeyBits() int { return e.gridSize * e.gridSize }

// KeyHexLen returns the hex-encoded length of a perceptual key.
func (e *Engine) KeyHexLen() int { return (e.KeyBits() + 7) / 8 * 2 }

// keyParams is the canonical serialization of every generation parameter
// that affects the rendered output. Field order is fixed and landmark order
// is preserved verbatim.
type keyParams struct {
	Landmarks   []models.Landmark `json:"landmarks"`
	Regions     []models.Region   `json:"regions"`
	ShowLabels  bool              `json:"show_labels"`
	Smooth      bool              `json:"smooth"`
	Opacity     float64           `json:"opacity"`
	StrokeWidth float64           `json:"stroke_width"`
}

// ExactKey computes the exact-match digest: SHA-256 over the image content
// digest followed by the canonical parameter serialization. Any input change
// changes the key.
func (e *Engine) ExactKey(req *models.RenderRequest) (string, error) {
	if req == nil || len(req.Image) == 0 {
		return "", ErrEmptyImage
	}
	h := sha256.New()
	imgSum := sha256.Sum256(req.Image)
	h.Write(imgSum[:])

	params, err := json.Marshal(keyParams{
		Landmarks:   req.Landmarks,
		Regions:     req.Regions,
		ShowLabels:  req.ShowLabels,
		Smooth:      req.Smooth,
		Opacity:     math.Round(req.Opacity*100) / 100,
		StrokeWidth: req.StrokeWidth,
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal key params: %w", err)
	}
	h.Write(params)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Distance returns the Hamming distance between two hex-encoded perceptual
// keys: the population count of their bitwise XOR. Keys of different widths
// are incomparable and yield ErrKeyWidthMismatch, never a truncated compare.
func Distance(a, b string) (int, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, ErrKeyWidthMismatch
	}
	ab, err := hex.DecodeString(a)
	if err != nil {
		return 0, fmt.Errorf("fingerprint: decode key: %w", err)
	}
	bb, err := hex.DecodeString(b)
	if err != nil {
		return 0, fmt.Errorf("fingerprint: decode key: %w", err)
	}
	d := 0
	for i := range ab {
		d += bits.OnesCount8(ab[i] ^ bb[i])
	}
	return d, nil
}
