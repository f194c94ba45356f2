// Package decoder reads image files from disk and decodes them into raw
// pixels, with the EXIF orientation already baked in.
package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/hatlen/tiv/tiv"

	// Register the supported codecs.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type Decoder struct{}

func New() *Decoder {
	return &Decoder{}
}

// Decode reads and decodes a single image file. Failures are classified
// with the tiv sentinels: [tiv.ErrFileNotFound] for files that vanished
// after enumeration, [tiv.ErrUnsupportedFormat] for content no registered
// codec recognizes.
func (d *Decoder) Decode(path string) (*image.NRGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", tiv.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("couldn't read file: %w", err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, classifyDecodeError(data, err)
	}

	orientation := 1
	if format == "jpeg" || format == "tiff" {
		orientation = readOrientation(bytes.NewReader(data))
	}

	return applyOrientation(img, orientation), nil
}

func classifyDecodeError(data []byte, err error) error {
	if !errors.Is(err, image.ErrFormat) {
		// A registered codec recognized the data but couldn't parse it.
		return fmt.Errorf("couldn't decode image: %w", err)
	}

	// Name the actual content type when it is recognizable.
	if t, matchErr := filetype.Match(data); matchErr == nil && t != filetype.Unknown {
		return fmt.Errorf("%w: %s", tiv.ErrUnsupportedFormat, t.MIME.Value)
	}
	return tiv.ErrUnsupportedFormat
}

// readOrientation returns the EXIF orientation tag value, or 1 when the
// image carries no usable tag.
func readOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}

	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation transforms the decoded pixels so that every consumer can
// treat them as upright.
func applyOrientation(img image.Image, orientation int) *image.NRGBA {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}
