package models

import "fmt"

// LandmarkCount is the number of face-mesh landmarks a render request must
// carry. The overlay geometry is defined against this fixed mesh.
const LandmarkCount = 478

// Landmark is a single face-mesh point in image pixel coordinates.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Region names a set of landmark indices rendered as one closed path.
type Region struct {
	Name    string `json:"name"`
	Indices []int  `json:"indices"`
	Color   string `json:"color"`
}

// RenderRequest is the full input of one overlay render: the source image,
// its landmarks, and every generation parameter that affects the output.
type RenderRequest struct {
	Image      []byte     `json:"image"`
	Landmarks  []Landmark `json:"landmarks"`
	Regions    []Region   `json:"regions,omitempty"`
	ShowLabels bool       `json:"show_labels,omitempty"`
	// Smooth draws region outlines as splines instead of straight segments.
	Smooth bool `json:"smooth,omitempty"`
	// Opacity of region fills. Zero means "use the configured default".
	Opacity     float64 `json:"opacity,omitempty"`
	StrokeWidth float64 `json:"stroke_width,omitempty"`
}

// Normalize fills unset parameters with configured defaults.
func (r *RenderRequest) Normalize(defaultOpacity, defaultStrokeWidth float64) {
	if r.Opacity == 0 {
		r.Opacity = defaultOpacity
	}
	if r.StrokeWidth == 0 {
		r.StrokeWidth = defaultStrokeWidth
	}
}

// Validate checks the request against the render contract. Violations are
// request errors: they fail fast and are never cached.
func (r *RenderRequest) Validate() error {
	if len(r.Image) == 0 {
		return fmt.Errorf("image data is required")
	}
	if len(r.Landmarks) != LandmarkCount {
		return fmt.Errorf("expected %d landmarks, got %d", LandmarkCount, len(r.Landmarks))
	}
	for i, lm := range r.Landmarks {
		if lm.X < 0 || lm.Y < 0 {
			return fmt.Errorf("landmark %d has negative coordinates", i)
		}
	}
	if r.Opacity < 0 || r.Opacity > 1 {
		return fmt.Errorf("opacity must be between 0 and 1, got %g", r.Opacity)
	}
	if r.StrokeWidth < 0 {
		return fmt.Errorf("stroke width must not be negative, got %g", r.StrokeWidth)
	}
	for _, reg := range r.Regions {
		if reg.Name == "" {
			return fmt.Errorf("region with empty name")
		}
		if len(reg.Indices) == 0 {
			return fmt.Errorf("region %q has no landmark indices", reg.Name)
		}
		for _, idx := range reg.Indices {
			if idx < 0 || idx >= len(r.Landmarks) {
				return fmt.Errorf("region %q references landmark %d out of range", reg.Name, idx)
			}
		}
	}
	return nil
}
