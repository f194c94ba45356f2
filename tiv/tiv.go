// Package tiv contains the types shared by all other packages: file
// identity, configuration, error classification and the contracts for
// image decoding and bitmap upload.
package tiv

import (
	"errors"
	"image"
)

var (
	// ErrFileNotFound is reported when a file vanished between directory
	// enumeration and decode.
	ErrFileNotFound = errors.New("file not found")
	// ErrUnsupportedFormat is reported when the codec can't parse the file content.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrUploadFailed is reported when a render device rejects decoded pixels.
	ErrUploadFailed = errors.New("bitmap upload failed")
)

// Decoder reads a file from disk and decodes it into raw pixels.
//
// Failures must be classified with the package sentinels where possible:
// [ErrFileNotFound] for missing files, [ErrUnsupportedFormat] for content
// the codec can't parse.
type Decoder interface {
	Decode(path string) (*image.NRGBA, error)
}

// Device turns decoded pixels into a ready-to-draw [Bitmap]. A Device
// stands for a concrete render target (a terminal of some size, a GPU
// context); bitmaps are only valid for the device that produced them.
type Device interface {
	Upload(img *image.NRGBA) (Bitmap, error)
}

// Bitmap is a device-specific image handle.
type Bitmap interface {
	// Bounds reports the bitmap dimensions in device units.
	Bounds() (width, height int)
	// SizeBytes reports the memory held by the bitmap. Used for cache accounting.
	SizeBytes() int64
}
