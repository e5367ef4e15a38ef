package fingerprint

import (
	"errors"
	"testing"

	"github.com/facetrace-ai/facetrace/pkg/models"
)

func testRequest() *models.RenderRequest {
	lms := make([]models.Landmark, models.LandmarkCount)
	for i := range lms {
		lms[i] = models.Landmark{X: float64(100 + i%20), Y: float64(100 + i/20)}
	}
	return &models.RenderRequest{
		Image:     []byte("raw image bytes"),
		Landmarks: lms,
		Opacity:   0.65,
	}
}

func TestExactKeyDeterministic(t *testing.T) {
	e := New(DefaultGridSize)

	k1, err := e.ExactKey(testRequest())
	if err != nil {
		t.Fatal(err)
	}
	k2, err := e.ExactKey(testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Error("same request should produce same exact key")
	}
	if len(k1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(k1))
	}
}

func TestExactKeySensitivity(t *testing.T) {
	e := New(DefaultGridSize)
	base, err := e.ExactKey(testRequest())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*models.RenderRequest)
	}{
		{"image bytes", func(r *models.RenderRequest) { r.Image = []byte("other image bytes") }},
		{"opacity", func(r *models.RenderRequest) { r.Opacity = 0.5 }},
		{"labels", func(r *models.RenderRequest) { r.ShowLabels = true }},
		{"smoothing", func(r *models.RenderRequest) { r.Smooth = true }},
		{"stroke width", func(r *models.RenderRequest) { r.StrokeWidth = 2 }},
		{"landmark value", func(r *models.RenderRequest) { r.Landmarks[42].X += 0.01 }},
		{"landmark order", func(r *models.RenderRequest) {
			r.Landmarks[0], r.Landmarks[1] = r.Landmarks[1], r.Landmarks[0]
		}},
		{"regions", func(r *models.RenderRequest) {
			r.Regions = []models.Region{{Name: "brow", Indices: []int{1, 2, 3}, Color: "#FFFFFF"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			tt.mutate(req)
			k, err := e.ExactKey(req)
			if err != nil {
				t.Fatal(err)
			}
			if k == base {
				t.Errorf("changing %s should change the exact key", tt.name)
			}
		})
	}
}

func TestExactKeyOpacityRounding(t *testing.T) {
	e := New(DefaultGridSize)

	a := testRequest()
	a.Opacity = 0.651
	b := testRequest()
	b.Opacity = 0.649

	ka, err := e.ExactKey(a)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := e.ExactKey(b)
	if err != nil {
		t.Fatal(err)
	}
	if ka != kb {
		t.Error("opacities within rounding precision should share a key")
	}

	c := testRequest()
	c.Opacity = 0.66
	kc, err := e.ExactKey(c)
	if err != nil {
		t.Fatal(err)
	}
	if kc == ka {
		t.Error("distinct rounded opacities should produce distinct keys")
	}
}

func TestExactKeyEmptyImage(t *testing.T) {
	e := New(DefaultGridSize)

	req := testRequest()
	req.Image = nil
	if _, err := e.ExactKey(req); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
	if _, err := e.ExactKey(nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage for nil request, got %v", err)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"identical", "0f0f0f0f0f0f0f0f", "0f0f0f0f0f0f0f0f", 0},
		{"two bits", "0000000000000000", "0000000000000003", 2},
		{"all bits", "0000000000000000", "ffffffffffffffff", 64},
		{"one nibble", "a000000000000000", "5000000000000000", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.a, tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Distance(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDistanceIncomparable(t *testing.T) {
	if _, err := Distance("0f0f0f0f0f0f0f0f", "0f0f"); !errors.Is(err, ErrKeyWidthMismatch) {
		t.Errorf("expected width mismatch, got %v", err)
	}
	if _, err := Distance("", ""); !errors.Is(err, ErrKeyWidthMismatch) {
		t.Errorf("expected width mismatch for empty keys, got %v", err)
	}
	if _, err := Distance("zzzzzzzzzzzzzzzz", "0f0f0f0f0f0f0f0f"); err == nil {
		t.Error("expected error for non-hex key")
	}
}
