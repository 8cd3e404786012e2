package imaging

import (
	"bytes"
	"context"
	"image"

	"bwupload/failure"
)

// DefaultMaxPixels bounds width*height accepted by Validate.
const DefaultMaxPixels = 40_000_000

// Decoded is a fully decoded upload in an allowed format.
type Decoded struct {
	Image  image.Image
	Format Format
	Width  int
	Height int
}

type Validator struct {
	// MaxPixels rejects images whose declared area exceeds it. Zero means
	// DefaultMaxPixels.
	MaxPixels int64
}

// Validate runs the default Validator.
func Validate(ctx context.Context, data []byte) (*Decoded, error) {
	return Validator{}.Validate(ctx, data)
}

func (v Validator) Validate(ctx context.Context, data []byte) (*Decoded, error) {
	if err := failure.FromContext(ctx); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, failure.New(failure.InvalidImage)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, failure.Wrap(failure.InvalidImage, err)
	}
	format := Format(name)
	if !format.Allowed() {
		return nil, failure.UnsupportedFormatOf(name)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, failure.Newf(failure.InvalidImage, "image has empty dimensions %dx%d", cfg.Width, cfg.Height)
	}
	limit := v.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > limit {
		return nil, failure.Newf(failure.InvalidImage,
			"image dimensions %dx%d exceed the %d pixel limit", cfg.Width, cfg.Height, limit)
	}

	if err := failure.FromContext(ctx); err != nil {
		return nil, err
	}

	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, failure.Wrap(failure.InvalidImage, err)
	}
	if Format(name) != format {
		return nil, failure.Newf(failure.InvalidImage, "container declared %s but decoded as %s", format, name)
	}
	b := img.Bounds()
	return &Decoded{
		Image:  img,
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}
