package imaging

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/jpeg"
	"math"

	xdraw "golang.org/x/image/draw"

	"bwupload/failure"
)

const (
	DefaultMaxDimension = 800
	// DefaultQuality is the JPEG quality of normalized images.
	DefaultQuality = 85
)

// Lanczos3 is a windowed-sinc resampling kernel with three lobes.
var Lanczos3 = &xdraw.Kernel{Support: 3, At: lanczos3}

func lanczos3(t float64) float64 {
	if t < 0 {
		t = -t
	}
	if t >= 3 {
		return 0
	}
	return sinc(t) * sinc(t/3)
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	x *= math.Pi
	return math.Sin(x) / x
}

// Normalized is the single-channel derivative of a Decoded image.
type Normalized struct {
	Image  *image.Gray
	Width  int
	Height int
}

// Normalize converts d to grayscale and shrinks it so that neither side exceeds
// maxDimension. Images that already fit keep their dimensions; nothing is ever
// enlarged. A maxDimension <= 0 means DefaultMaxDimension.
func Normalize(ctx context.Context, d *Decoded, maxDimension int) (*Normalized, error) {
	if d == nil || d.Image == nil {
		return nil, failure.Newf(failure.InternalError, "normalize: no decoded image")
	}
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}

	gray := Grayscale(d.Image)
	if err := failure.FromContext(ctx); err != nil {
		return nil, err
	}

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	nw, nh := FitWithin(w, h, maxDimension)
	if nw == w && nh == h {
		return &Normalized{Image: gray, Width: w, Height: h}, nil
	}

	dst := image.NewGray(image.Rect(0, 0, nw, nh))
	Lanczos3.Scale(dst, dst.Bounds(), gray, gray.Bounds(), xdraw.Src, nil)
	return &Normalized{Image: dst, Width: nw, Height: nh}, nil
}

// Grayscale converts img to luma using color.GrayModel (BT.601 weights).
// The result always has its origin at (0, 0).
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// FitWithin returns the size of a w×h image scaled so that its longer side is
// maxDimension. Sizes already within bounds are returned unchanged.
func FitWithin(w, h, maxDimension int) (int, int) {
	if w <= maxDimension && h <= maxDimension {
		return w, h
	}
	if w >= h {
		return maxDimension, scaleSide(h, maxDimension, w)
	}
	return scaleSide(w, maxDimension, h), maxDimension
}

func scaleSide(side, target, longest int) int {
	n := int(math.Round(float64(side) * float64(target) / float64(longest)))
	if n < 1 {
		return 1
	}
	return n
}

// Encode serializes n as a baseline grayscale JPEG. quality <= 0 means
// DefaultQuality.
func Encode(ctx context.Context, n *Normalized, quality int) ([]byte, error) {
	if err := failure.FromContext(ctx); err != nil {
		return nil, err
	}
	if n == nil || n.Image == nil {
		return nil, failure.Newf(failure.InternalError, "encode: no normalized image")
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, n.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, failure.Wrap(failure.InternalError, err)
	}
	return buf.Bytes(), nil
}
