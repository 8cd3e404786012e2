// Package pipeline runs one upload through extraction, validation and
// normalization. It performs no I/O: the caller stores the returned bytes.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bwupload/extract"
	"bwupload/failure"
	"bwupload/imaging"
)

// RawRequest is the transport-level input of one invocation.
type RawRequest struct {
	Body            []byte
	ContentType     string
	IsBase64Encoded bool
}

// Payload returns the body with any base64 transport encoding removed.
func (r RawRequest) Payload() ([]byte, error) {
	if !r.IsBase64Encoded {
		return r.Body, nil
	}
	out := make([]byte, base64.StdEncoding.DecodedLen(len(r.Body)))
	n, err := base64.StdEncoding.Decode(out, r.Body)
	if err != nil {
		return nil, failure.Wrap(failure.MalformedBody, err)
	}
	return out[:n], nil
}

// Result is everything the storage collaborator needs for the two puts.
type Result struct {
	ID                    string
	Filename              string
	Original              []byte
	OriginalContentType   string
	OriginalKey           string
	Normalized            []byte
	NormalizedContentType string
	NormalizedKey         string
	Format                imaging.Format
	Width                 int
	Height                int
}

type Options struct {
	Policy       extract.Policy
	MaxDimension int
	Quality      int
	MaxPixels    int64
}

type Processor struct {
	extractor extract.Extractor
	validator imaging.Validator
	maxDim    int
	quality   int
	log       *zap.Logger

	// newID namespaces storage keys; replaced in tests.
	newID func() string
}

func New(opts Options, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = imaging.DefaultMaxDimension
	}
	if opts.Quality <= 0 {
		opts.Quality = imaging.DefaultQuality
	}
	return &Processor{
		extractor: extract.Extractor{Policy: opts.Policy},
		validator: imaging.Validator{MaxPixels: opts.MaxPixels},
		maxDim:    opts.MaxDimension,
		quality:   opts.Quality,
		log:       log,
		newID:     uuid.NewString,
	}
}

// Process turns a raw request into the original and normalized images. Every
// returned error is a *failure.Error; a panic in a codec becomes InternalError.
func (p *Processor) Process(ctx context.Context, req RawRequest) (res *Result, err error) {
	defer p.recoverPanic(&res, &err)

	body, err := req.Payload()
	if err != nil {
		return nil, err
	}
	file, err := p.extractor.Extract(body, req.ContentType)
	if err != nil {
		return nil, err
	}
	p.log.Debug("File extracted",
		zap.String("filename", file.Filename),
		zap.Int("size", len(file.Content)))

	return p.transform(ctx, file.Filename, file.Content)
}

// ProcessFile runs an already extracted file through validation and
// normalization.
func (p *Processor) ProcessFile(ctx context.Context, filename string, content []byte) (res *Result, err error) {
	defer p.recoverPanic(&res, &err)
	return p.transform(ctx, filename, content)
}

// ProcessNamed handles a body that is the image itself, with the filename
// supplied out of band (the File-Name header). The extension must be one of
// png, jpg or jpeg before the content is even decoded.
func (p *Processor) ProcessNamed(ctx context.Context, filename string, req RawRequest) (res *Result, err error) {
	defer p.recoverPanic(&res, &err)

	ext, ok := extension(filename)
	if !ok {
		return nil, failure.Newf(failure.NoFileFound, "missing or invalid file-name header")
	}
	if !namedExtensions[ext] {
		return nil, failure.Newf(failure.UnsupportedFormat, "invalid file type %q, allowed: png, jpg, jpeg", ext)
	}
	content, err := req.Payload()
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, failure.Newf(failure.MalformedBody, "empty request body, expected the image bytes")
	}
	p.log.Debug("Named upload received",
		zap.String("filename", filename),
		zap.Int("size", len(content)))

	return p.transform(ctx, filename, content)
}

var namedExtensions = map[string]bool{"png": true, "jpg": true, "jpeg": true}

func extension(filename string) (string, bool) {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return "", false
	}
	return strings.ToLower(filename[i+1:]), true
}

func (p *Processor) transform(ctx context.Context, filename string, content []byte) (*Result, error) {
	decoded, err := p.validator.Validate(ctx, content)
	if err != nil {
		return nil, err
	}
	normalized, err := imaging.Normalize(ctx, decoded, p.maxDim)
	if err != nil {
		return nil, err
	}
	out, err := imaging.Encode(ctx, normalized, p.quality)
	if err != nil {
		return nil, err
	}

	id := p.newID()
	origKey, normKey := Keys(id, filename)
	return &Result{
		ID:                    id,
		Filename:              filename,
		Original:              content,
		OriginalContentType:   decoded.Format.ContentType(),
		OriginalKey:           origKey,
		Normalized:            out,
		NormalizedContentType: imaging.OutputContentType,
		NormalizedKey:         normKey,
		Format:                decoded.Format,
		Width:                 normalized.Width,
		Height:                normalized.Height,
	}, nil
}

func (p *Processor) recoverPanic(res **Result, err *error) {
	if r := recover(); r != nil {
		p.log.Error("Panic while processing upload",
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()))
		*res, *err = nil, failure.Wrap(failure.InternalError, fmt.Errorf("panic: %v", r))
	}
}
