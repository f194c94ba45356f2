package testutil

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// NewImage returns a w×h image filled with the given color.
func NewImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// WritePNG encodes img into dir/name and returns the full path.
func WritePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()

	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("couldn't create %q: %s", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("couldn't encode %q: %s", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("couldn't close %q: %s", path, err)
	}

	return path
}

// WriteFile writes data into dir/name with the given mod time and
// returns the full path.
func WriteFile(t *testing.T, dir, name string, data []byte, modTime time.Time) string {
	t.Helper()

	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("couldn't write %q: %s", path, err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("couldn't change mod time of %q: %s", path, err)
	}

	return path
}
