package tui

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/hatlen/tiv/tiv"
)

// Device renders decoded images into ANSI art for one exact terminal size.
// Every cell draws two pixels with the upper-half-block glyph: the
// character color paints the top pixel, the background color the bottom
// one. Frames produced for one size are useless after a resize, so the
// owner replaces the device and drops all cached frames when the terminal
// changes.
type Device struct {
	width  int
	height int
	filter imaging.ResampleFilter
}

func NewDevice(width, height int, interpolation tiv.Interpolation) *Device {
	filter := imaging.Linear
	switch interpolation {
	case tiv.InterpolationNearest:
		filter = imaging.NearestNeighbor
	case tiv.InterpolationCatmullRom:
		filter = imaging.CatmullRom
	}

	return &Device{
		width:  width,
		height: height,
		filter: filter,
	}
}

// Upload scales the image to fit the render area, preserving the aspect
// ratio, and encodes it into a [Frame].
func (d *Device) Upload(img *image.NRGBA) (tiv.Bitmap, error) {
	if d.width <= 0 || d.height <= 0 {
		return nil, fmt.Errorf("%w: the render area is empty", tiv.ErrUploadFailed)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: the image has no pixels", tiv.ErrUploadFailed)
	}

	// The pixel canvas is two pixels tall per cell row.
	pixelWidth, pixelHeight := fitRect(bounds.Dx(), bounds.Dy(), d.width, 2*d.height)

	return newFrame(imaging.Resize(img, pixelWidth, pixelHeight, d.filter)), nil
}

// fitRect scales (w, h) to fit inside (boxW, boxH) preserving the aspect
// ratio. Small images are scaled up to fill the box. All arguments must be
// positive.
func fitRect(w, h, boxW, boxH int) (int, int) {
	if w*boxH >= h*boxW {
		// Bound by width.
		return boxW, max(h*boxW/w, 1)
	}
	return max(w*boxH/h, 1), boxH
}

// Frame is a rendered image: one string of ANSI-colored half-block glyphs
// per terminal row.
type Frame struct {
	width  int
	height int
	lines  []string
	size   int64
}

// canvasColor shows through transparent pixels and fills the missing
// bottom half of an odd-height image.
var canvasColor = color.NRGBA{R: 38, G: 38, B: 38, A: 255}

func newFrame(img *image.NRGBA) *Frame {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := (bounds.Dy() + 1) / 2

	var size int64
	lines := make([]string, 0, height)

	b := new(strings.Builder)
	for row := range height {
		b.Reset()

		// Emit the color sequences only when the colors change between
		// neighboring cells: photos often have long runs of equal pixels
		// after downscaling.
		var fg, bg color.NRGBA
		for x := range width {
			top := blend(img.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+2*row))

			bottom := canvasColor
			if 2*row+1 < bounds.Dy() {
				bottom = blend(img.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+2*row+1))
			}

			if x == 0 || top != fg {
				fmt.Fprintf(b, "\x1b[38;2;%d;%d;%dm", top.R, top.G, top.B)
				fg = top
			}
			if x == 0 || bottom != bg {
				fmt.Fprintf(b, "\x1b[48;2;%d;%d;%dm", bottom.R, bottom.G, bottom.B)
				bg = bottom
			}
			b.WriteRune('▀')
		}
		b.WriteString("\x1b[0m")

		line := b.String()
		size += int64(len(line))
		lines = append(lines, line)
	}

	return &Frame{
		width:  width,
		height: height,
		lines:  lines,
		size:   size,
	}
}

// blend composites a pixel over the canvas color.
func blend(c color.NRGBA) color.NRGBA {
	if c.A == 255 {
		return c
	}

	a := uint32(c.A)
	mix := func(fg, bg uint8) uint8 {
		return uint8((uint32(fg)*a + uint32(bg)*(255-a)) / 255)
	}
	return color.NRGBA{
		R: mix(c.R, canvasColor.R),
		G: mix(c.G, canvasColor.G),
		B: mix(c.B, canvasColor.B),
		A: 255,
	}
}

// Bounds reports the frame dimensions in terminal cells.
func (f *Frame) Bounds() (width, height int) {
	return f.width, f.height
}

// SizeBytes reports the memory held by the encoded frame.
func (f *Frame) SizeBytes() int64 {
	return f.size
}

func (f *Frame) String() string {
	return strings.Join(f.lines, "\n")
}
