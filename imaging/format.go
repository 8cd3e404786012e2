// Package imaging validates uploaded image bytes and derives the normalized
// grayscale JPEG that is stored next to the original.
//
// Validation is two-phase: image.DecodeConfig checks the header and container
// first so that garbage and truncated payloads are rejected before any pixel
// buffer is allocated, and only then is the image fully decoded.
package imaging

import (
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Format is the name an image decoder registered itself under.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
)

// OutputContentType is the content type of every normalized image.
const OutputContentType = "image/jpeg"

// Allowed reports whether f may be accepted as an upload.
func (f Format) Allowed() bool {
	return f == JPEG || f == PNG
}

// ContentType returns the MIME type used when storing an original of format f.
func (f Format) ContentType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
