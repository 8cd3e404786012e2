// Package service runs an upload end to end: process, store both images, and
// raise an alert for anything rejected along the way.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bwupload/failure"
	"bwupload/pipeline"
	"bwupload/storage"
)

// Alerter is satisfied by *alert.Dispatcher.
type Alerter interface {
	Send(subject, message string)
}

type Upload struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	Format        string `json:"format"`
	OriginalKey   string `json:"original_key"`
	NormalizedKey string `json:"normalized_key"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
}

type UploadService struct {
	proc    *pipeline.Processor
	store   storage.Store
	alerts  Alerter
	timeout time.Duration
	log     *zap.Logger
}

func NewUploadService(proc *pipeline.Processor, store storage.Store, alerts Alerter, timeout time.Duration, log *zap.Logger) *UploadService {
	return &UploadService{
		proc:    proc,
		store:   store,
		alerts:  alerts,
		timeout: timeout,
		log:     log,
	}
}

// Upload processes req and stores the original and the normalized image. The
// returned error is always a *failure.Error.
func (s *UploadService) Upload(ctx context.Context, req pipeline.RawRequest) (*Upload, error) {
	return s.run(ctx, func(ctx context.Context) (*pipeline.Result, error) {
		return s.proc.Process(ctx, req)
	})
}

// UploadNamed is Upload for a body that is the image itself, named by the
// caller instead of a multipart part.
func (s *UploadService) UploadNamed(ctx context.Context, filename string, req pipeline.RawRequest) (*Upload, error) {
	return s.run(ctx, func(ctx context.Context) (*pipeline.Result, error) {
		return s.proc.ProcessNamed(ctx, filename, req)
	})
}

func (s *UploadService) run(ctx context.Context, process func(context.Context) (*pipeline.Result, error)) (*Upload, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := process(ctx)
	if err != nil {
		fe := failure.As(err)
		s.Reject(fe)
		return nil, fe
	}

	if err := s.store.Put(ctx, storage.Original, res.OriginalKey, res.Original, res.OriginalContentType); err != nil {
		return nil, s.storeFailed(ctx, "original", res, err)
	}
	if err := s.store.Put(ctx, storage.Processed, res.NormalizedKey, res.Normalized, res.NormalizedContentType); err != nil {
		return nil, s.storeFailed(ctx, "normalized", res, err)
	}

	s.log.Info("Image uploaded and normalized",
		zap.String("id", res.ID),
		zap.String("filename", res.Filename),
		zap.String("format", string(res.Format)),
		zap.Int("original_size", len(res.Original)),
		zap.Int("normalized_size", len(res.Normalized)),
		zap.Int("width", res.Width),
		zap.Int("height", res.Height))

	return &Upload{
		ID:            res.ID,
		Filename:      res.Filename,
		Format:        string(res.Format),
		OriginalKey:   res.OriginalKey,
		NormalizedKey: res.NormalizedKey,
		Width:         res.Width,
		Height:        res.Height,
	}, nil
}

// Reject logs and alerts on a failure that happened before or outside Upload,
// e.g. an oversized body refused by the transport.
func (s *UploadService) Reject(fe *failure.Error) {
	if fe.Kind == failure.InternalError || fe.Kind == failure.Timeout {
		s.log.Error("Upload failed", zap.String("kind", fe.Kind.String()), zap.Error(fe))
	} else {
		s.log.Info("Upload rejected", zap.String("kind", fe.Kind.String()), zap.String("reason", fe.Message))
	}
	s.alerts.Send(Subject(fe.Kind), fe.Error())
}

func (s *UploadService) storeFailed(ctx context.Context, which string, res *pipeline.Result, err error) *failure.Error {
	kind := failure.InternalError
	if ctx.Err() != nil {
		kind = failure.Timeout
	}
	fe := failure.Wrap(kind, fmt.Errorf("store %s image %q: %w", which, res.Filename, err))
	s.Reject(fe)
	return fe
}

// Subject is the alert subject line for a failure kind.
func Subject(k failure.Kind) string {
	switch k {
	case failure.UnsupportedContentType, failure.MissingBoundary, failure.MalformedBody, failure.PayloadTooLarge:
		return "Invalid Upload"
	case failure.NoFileFound, failure.MultipleFiles, failure.InvalidImage:
		return "Invalid Image Upload"
	case failure.UnsupportedFormat:
		return "Invalid Image Format"
	case failure.Timeout:
		return "Processing Timeout"
	default:
		return "Processing Error"
	}
}
