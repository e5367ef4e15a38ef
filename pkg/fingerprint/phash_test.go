package fingerprint

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := uint8(x * 255 / (w - 1))
			img.Set(x, y, color.RGBA{R: c, G: c, B: c, A: 255})
		}
	}
	return img
}

func checkerImage(w, h, block int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := uint8(0)
			if (x/block+y/block)%2 == 0 {
				c = 255
			}
			img.Set(x, y, color.RGBA{R: c, G: c, B: c, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image, level png.CompressionLevel) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPerceptualKeyWidth(t *testing.T) {
	img := encodePNG(t, gradientImage(128, 128), png.DefaultCompression)

	for _, grid := range []int{4, 8, 16} {
		e := New(grid)
		key, err := e.PerceptualKey(img)
		if err != nil {
			t.Fatalf("grid %d: %v", grid, err)
		}
		if len(key) != e.KeyHexLen() {
			t.Errorf("grid %d: key length %d, want %d", grid, len(key), e.KeyHexLen())
		}
	}
}

func TestPerceptualKeyIgnoresEncoding(t *testing.T) {
	e := New(DefaultGridSize)
	img := gradientImage(128, 128)

	a := encodePNG(t, img, png.DefaultCompression)
	b := encodePNG(t, img, png.NoCompression)
	if bytes.Equal(a, b) {
		t.Fatal("encodings should differ at the byte level")
	}

	ka, err := e.PerceptualKey(a)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := e.PerceptualKey(b)
	if err != nil {
		t.Fatal(err)
	}
	if ka != kb {
		t.Errorf("same pixels should hash identically: %s vs %s", ka, kb)
	}
}

func colorGradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / (w - 1)),
				G: uint8(y * 255 / (h - 1)),
				B: 120,
				A: 255,
			})
		}
	}
	return img
}

func TestPerceptualKeySurvivesLossyRecompression(t *testing.T) {
	e := New(DefaultGridSize)

	// Low-texture content is the hard case: most of its DCT block sits at
	// the noise floor, where re-encoding artifacts are loudest.
	tests := []struct {
		name    string
		img     image.Image
		quality int
	}{
		{"gray gradient q90", gradientImage(128, 128), 90},
		{"gray gradient q85", gradientImage(128, 128), 85},
		{"color gradient q85", colorGradientImage(128, 128), 85},
		{"checkerboard q85", checkerImage(128, 128, 16), 85},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kPNG, err := e.PerceptualKey(encodePNG(t, tt.img, png.DefaultCompression))
			if err != nil {
				t.Fatal(err)
			}
			kJPEG, err := e.PerceptualKey(encodeJPEG(t, tt.img, tt.quality))
			if err != nil {
				t.Fatal(err)
			}

			d, err := Distance(kPNG, kJPEG)
			if err != nil {
				t.Fatal(err)
			}
			if d > 10 {
				t.Errorf("recompressed image drifted %d bits, want <= 10", d)
			}
		})
	}
}

func TestPerceptualKeySeparatesDistinctImages(t *testing.T) {
	e := New(DefaultGridSize)

	kg, err := e.PerceptualKey(encodePNG(t, gradientImage(128, 128), png.DefaultCompression))
	if err != nil {
		t.Fatal(err)
	}
	kc, err := e.PerceptualKey(encodePNG(t, checkerImage(128, 128, 16), png.DefaultCompression))
	if err != nil {
		t.Fatal(err)
	}

	d, err := Distance(kg, kc)
	if err != nil {
		t.Fatal(err)
	}
	if d <= 10 {
		t.Errorf("unrelated images only %d bits apart", d)
	}
}

func TestPerceptualKeyMalformedImage(t *testing.T) {
	e := New(DefaultGridSize)

	for _, data := range [][]byte{
		[]byte("not an image"),
		{0x89, 0x50, 0x4e, 0x47},
		{},
	} {
		key, err := e.PerceptualKey(data)
		if !errors.Is(err, ErrNoPerceptualKey) {
			t.Errorf("expected ErrNoPerceptualKey, got %v", err)
		}
		if key != "" {
			t.Errorf("expected empty key on failure, got %q", key)
		}
	}
}
