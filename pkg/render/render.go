package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/facetrace-ai/facetrace/pkg/models"
)

// defaultRegionColor fills in for custom regions supplied without a color.
const defaultRegionColor = "#B695C0"

// Renderer produces SVG overlay artifacts: the source image embedded as a
// data URI with each facial region drawn as a filled, semi-transparent mask.
type Renderer struct{}

// New creates a Renderer.
func New() *Renderer {
	return &Renderer{}
}

// Process renders the overlay for a request. The returned payload carries
// the SVG artifact plus its dimensions and region count as metadata.
func (r *Renderer) Process(ctx context.Context, req *models.RenderRequest) (*models.Payload, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(req.Image))
	if err != nil {
		return nil, fmt.Errorf("render: decode image: %w", err)
	}

	regions := req.Regions
	if len(regions) == 0 {
		regions = models.DefaultFaceRegions()
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">`,
		cfg.Width, cfg.Height)
	b.WriteByte('\n')

	fmt.Fprintf(&b, `  <image width="%d" height="%d" xlink:href="data:%s;base64,%s"/>`,
		cfg.Width, cfg.Height, sniffImageMIME(req.Image),
		base64.StdEncoding.EncodeToString(req.Image))
	b.WriteByte('\n')

	drawn := 0
	for _, region := range regions {
		points := regionPoints(req.Landmarks, region.Indices)
		if len(points) < 3 {
			continue
		}

		color := region.Color
		if color == "" {
			color = defaultRegionColor
		}

		fmt.Fprintf(&b, `  <path d="%s" fill="%s" fill-opacity="%s" `,
			pathFor(points, req.Smooth), color, formatFloat(req.Opacity))
		if req.StrokeWidth > 0 {
			fmt.Fprintf(&b, `stroke="%s" stroke-width="%s" `, color, formatFloat(req.StrokeWidth))
		}
		b.WriteString("/>\n")
		drawn++

		if req.ShowLabels {
			cx, cy := centroid(points)
			fmt.Fprintf(&b, `  <text x="%.2f" y="%.2f" font-family="Arial, sans-serif" font-size="40" font-weight="bold" fill="white" text-anchor="middle" dominant-baseline="middle" opacity="0.9">%d</text>`,
				cx, cy, drawn)
			b.WriteByte('\n')
		}
	}
	b.WriteString("</svg>")

	return &models.Payload{
		Artifact:    []byte(b.String()),
		ContentType: "image/svg+xml",
		Meta: map[string]string{
			"width":   strconv.Itoa(cfg.Width),
			"height":  strconv.Itoa(cfg.Height),
			"regions": strconv.Itoa(drawn),
		},
	}, nil
}

// regionPoints resolves a region's landmark indices, dropping any index
// beyond the landmark list.
func regionPoints(landmarks []models.Landmark, indices []int) []models.Landmark {
	points := make([]models.Landmark, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(landmarks) {
			points = append(points, landmarks[idx])
		}
	}
	return points
}

// pathFor builds a closed SVG path through the given points, either as
// straight segments or as a Catmull-Rom spline expressed in cubic Beziers.
// Splines need at least four points; smaller regions stay polygonal.
func pathFor(points []models.Landmark, smooth bool) string {
	if smooth && len(points) > 3 {
		return smoothPathFor(points)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "M %.2f,%.2f", points[0].X, points[0].Y)
	for _, p := range points[1:] {
		fmt.Fprintf(&b, " L %.2f,%.2f", p.X, p.Y)
	}
	b.WriteString(" Z")
	return b.String()
}

func smoothPathFor(points []models.Landmark) string {
	// Wrap around so the closing segment curves like the rest.
	pts := append(append([]models.Landmark{}, points...), points[0])

	var b strings.Builder
	fmt.Fprintf(&b, "M %.2f,%.2f", pts[0].X, pts[0].Y)

	for i := 0; i < len(pts)-1; i++ {
		p0 := pts[len(pts)-2]
		if i > 0 {
			p0 = pts[i-1]
		}
		p1, p2 := pts[i], pts[i+1]
		p3 := pts[1]
		if i+2 < len(pts) {
			p3 = pts[i+2]
		}

		cp1x := p1.X + (p2.X-p0.X)/6
		cp1y := p1.Y + (p2.Y-p0.Y)/6
		cp2x := p2.X - (p3.X-p1.X)/6
		cp2y := p2.Y - (p3.Y-p1.Y)/6

		fmt.Fprintf(&b, " C %.2f,%.2f %.2f,%.2f %.2f,%.2f", cp1x, cp1y, cp2x, cp2y, p2.X, p2.Y)
	}
	b.WriteString(" Z")
	return b.String()
}

func centroid(points []models.Landmark) (float64, float64) {
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return sx / n, sy / n
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// sniffImageMIME detects the embedded image's MIME type from its magic
// bytes, defaulting to JPEG for anything unrecognized.
func sniffImageMIME(data []byte) string {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "image/jpeg"
	}
	return mime
}
