package uploadserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"bwupload/failure"
	"bwupload/pipeline"
	"bwupload/service"
	"bwupload/storage"
)

// uploader is satisfied by *service.UploadService.
type uploader interface {
	Upload(ctx context.Context, req pipeline.RawRequest) (*service.Upload, error)
	UploadNamed(ctx context.Context, filename string, req pipeline.RawRequest) (*service.Upload, error)
	Reject(fe *failure.Error)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// FileNameHeader names the image sent as the raw body of /upload/raw.
const FileNameHeader = "File-Name"

// uploadHandler accepts one multipart/form-data image. Clients behind a gateway
// that forwards the body base64 encoded set Content-Transfer-Encoding: base64.
func uploadHandler(svc uploader, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readUpload(w, r, svc, maxBytes)
		if !ok {
			return
		}
		up, err := svc.Upload(r.Context(), req)
		if err != nil {
			respondFailure(w, failure.As(err))
			return
		}
		respondJSON(w, http.StatusOK, service.Succeeded(up))
	}
}

// rawUploadHandler accepts the image itself as the body, named by the File-Name header.
func rawUploadHandler(svc uploader, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readUpload(w, r, svc, maxBytes)
		if !ok {
			return
		}
		up, err := svc.UploadNamed(r.Context(), r.Header.Get(FileNameHeader), req)
		if err != nil {
			respondFailure(w, failure.As(err))
			return
		}
		respondJSON(w, http.StatusOK, service.Succeeded(up))
	}
}

// readUpload enforces POST and the body limit. On false the response is written.
func readUpload(w http.ResponseWriter, r *http.Request, svc uploader, maxBytes int64) (pipeline.RawRequest, bool) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, service.Response{Message: "method not allowed"})
		return pipeline.RawRequest{}, false
	}

	body := io.Reader(r.Body)
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		fe := failure.Wrap(failure.MalformedBody, err)
		if errors.As(err, &tooLarge) {
			fe = failure.Newf(failure.PayloadTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		}
		svc.Reject(fe)
		respondFailure(w, fe)
		return pipeline.RawRequest{}, false
	}

	return pipeline.RawRequest{
		Body:            data,
		ContentType:     r.Header.Get("Content-Type"),
		IsBase64Encoded: strings.EqualFold(r.Header.Get("Content-Transfer-Encoding"), "base64"),
	}, true
}

// objectsHandler streams a stored object: GET /objects/{bucket}/{key...} where
// bucket is "original" or "processed".
func objectsHandler(store storage.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		name, objectKey, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/objects/"), "/")
		bucket, ok := storage.ParseBucket(name)
		if !ok {
			http.Error(w, "unknown bucket", http.StatusNotFound)
			return
		}
		if objectKey == "" {
			http.Error(w, "object key required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		obj, err := store.Get(ctx, bucket, objectKey)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "object not found", http.StatusNotFound)
				return
			}
			log.Error("Failed to get object", zap.String("bucket", name), zap.String("key", objectKey), zap.Error(err))
			http.Error(w, "failed to get object", http.StatusInternalServerError)
			return
		}
		defer obj.Body.Close()

		if obj.ContentType != "" {
			w.Header().Set("Content-Type", obj.ContentType)
		}
		if obj.Size >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		}
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, obj.Body); err != nil {
			log.Warn("Failed to stream object", zap.String("key", objectKey), zap.Error(err))
		}
	}
}

// objectLister is the read-only slice of storage.Store the debug listing needs.
type objectLister interface {
	List(ctx context.Context, bucket storage.Bucket, prefix string) ([]string, error)
}

// debugList lists keys in a logical bucket, e.g. /debug/list?bucket=original&prefix=<id>/
// The bucket defaults to processed.
func debugList(lister objectLister, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		bucket := storage.Processed
		if name := r.URL.Query().Get("bucket"); name != "" {
			b, ok := storage.ParseBucket(name)
			if !ok {
				http.Error(w, "unknown bucket", http.StatusBadRequest)
				return
			}
			bucket = b
		}
		prefix := r.URL.Query().Get("prefix")

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		keys, err := lister.List(ctx, bucket, prefix)
		if err != nil {
			log.Error("Failed to list objects", zap.String("bucket", string(bucket)), zap.Error(err))
			http.Error(w, "failed to list objects", http.StatusInternalServerError)
			return
		}
		if keys == nil {
			keys = []string{}
		}

		respondJSON(w, http.StatusOK, map[string]any{"bucket": bucket, "objects": keys})
	}
}

func respondFailure(w http.ResponseWriter, fe *failure.Error) {
	respondJSON(w, fe.Kind.Status(), service.Failed(fe))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
