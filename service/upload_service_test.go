package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bwupload/failure"
	"bwupload/pipeline"
	"bwupload/storage"
)

type put struct {
	bucket      storage.Bucket
	key         string
	data        []byte
	contentType string
}

type fakeStore struct {
	puts    []put
	failOn  storage.Bucket
	failErr error
}

func (f *fakeStore) Put(_ context.Context, bucket storage.Bucket, key string, data []byte, contentType string) error {
	if bucket == f.failOn {
		return f.failErr
	}
	f.puts = append(f.puts, put{bucket, key, data, contentType})
	return nil
}

func (f *fakeStore) Get(context.Context, storage.Bucket, string) (*storage.Object, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeStore) List(context.Context, storage.Bucket, string) ([]string, error) {
	return nil, nil
}

type fakeAlerter struct {
	subjects []string
}

func (f *fakeAlerter) Send(subject, _ string) {
	f.subjects = append(f.subjects, subject)
}

func jpegUpload(t *testing.T, w, h int) pipeline.RawRequest {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	var enc bytes.Buffer
	require.NoError(t, jpeg.Encode(&enc, img, nil))

	var b bytes.Buffer
	b.WriteString("--XYZ\r\nContent-Disposition: form-data; name=\"file\"; filename=\"photo.jpg\"\r\n")
	b.WriteString("Content-Type: image/jpeg\r\n\r\n")
	b.Write(enc.Bytes())
	b.WriteString("\r\n--XYZ--\r\n")
	return pipeline.RawRequest{Body: b.Bytes(), ContentType: "multipart/form-data; boundary=XYZ"}
}

func newService(store storage.Store, alerts Alerter, maxDim int) *UploadService {
	proc := pipeline.New(pipeline.Options{MaxDimension: maxDim}, zap.NewNop())
	return NewUploadService(proc, store, alerts, time.Minute, zap.NewNop())
}

func TestUpload_StoresOriginalThenNormalized(t *testing.T) {
	store := &fakeStore{}
	alerts := &fakeAlerter{}
	req := jpegUpload(t, 2000, 1000)

	up, err := newService(store, alerts, 1000).Upload(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "photo.jpg", up.Filename)
	assert.Equal(t, "jpeg", up.Format)
	assert.Equal(t, 1000, up.Width)
	assert.Equal(t, 500, up.Height)
	assert.Empty(t, alerts.subjects)

	require.Len(t, store.puts, 2)
	assert.Equal(t, storage.Original, store.puts[0].bucket)
	assert.Equal(t, up.OriginalKey, store.puts[0].key)
	assert.Equal(t, "image/jpeg", store.puts[0].contentType)
	assert.Equal(t, storage.Processed, store.puts[1].bucket)
	assert.Equal(t, up.NormalizedKey, store.puts[1].key)
	assert.Equal(t, "image/jpeg", store.puts[1].contentType)

	out, err := jpeg.Decode(bytes.NewReader(store.puts[1].data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1000, 500), out.Bounds())
	assert.IsType(t, &image.Gray{}, out)
}

func TestUpload_RejectionAlertsAndSkipsStorage(t *testing.T) {
	store := &fakeStore{}
	alerts := &fakeAlerter{}

	_, err := newService(store, alerts, 0).Upload(context.Background(), pipeline.RawRequest{
		Body:        []byte("{}"),
		ContentType: "application/json",
	})
	assert.Equal(t, failure.UnsupportedContentType, failure.KindOf(err))
	assert.Empty(t, store.puts)
	assert.Equal(t, []string{"Invalid Upload"}, alerts.subjects)
}

func TestUpload_StorageFailureIsInternal(t *testing.T) {
	store := &fakeStore{failOn: storage.Processed, failErr: errors.New("bucket gone")}
	alerts := &fakeAlerter{}

	_, err := newService(store, alerts, 0).Upload(context.Background(), jpegUpload(t, 20, 20))
	require.Error(t, err)
	assert.Equal(t, failure.InternalError, failure.KindOf(err))
	assert.ErrorContains(t, err, "bucket gone")
	assert.Len(t, store.puts, 1, "original was stored before the failure")
	assert.Equal(t, []string{"Processing Error"}, alerts.subjects)
}

func TestUploadNamed_StoresRawImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	var enc bytes.Buffer
	require.NoError(t, jpeg.Encode(&enc, img, nil))
	store := &fakeStore{}
	alerts := &fakeAlerter{}

	up, err := newService(store, alerts, 20).UploadNamed(context.Background(), "scan.jpg", pipeline.RawRequest{Body: enc.Bytes()})
	require.NoError(t, err)

	assert.Equal(t, "scan.jpg", up.Filename)
	assert.Equal(t, 20, up.Width)
	assert.Equal(t, 10, up.Height)
	assert.Empty(t, alerts.subjects)
	require.Len(t, store.puts, 2)
	assert.Equal(t, enc.Bytes(), store.puts[0].data)
	assert.Equal(t, up.NormalizedKey, store.puts[1].key)
}

func TestUploadNamed_RejectsExtension(t *testing.T) {
	store := &fakeStore{}
	alerts := &fakeAlerter{}

	_, err := newService(store, alerts, 0).UploadNamed(context.Background(), "anim.gif", pipeline.RawRequest{Body: []byte("GIF89a")})
	assert.Equal(t, failure.UnsupportedFormat, failure.KindOf(err))
	assert.Empty(t, store.puts)
	assert.Equal(t, []string{"Invalid Image Format"}, alerts.subjects)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "Invalid Image Format", Subject(failure.UnsupportedFormat))
	assert.Equal(t, "Invalid Image Upload", Subject(failure.NoFileFound))
	assert.Equal(t, "Processing Error", Subject(failure.InternalError))
	assert.Equal(t, "Processing Timeout", Subject(failure.Timeout))
}

func TestResponses(t *testing.T) {
	ok := Succeeded(&Upload{Filename: "photo.jpg"})
	assert.Equal(t, "Successfully uploaded and processed image 'photo.jpg'.", ok.Message)
	assert.Empty(t, ok.Error)

	bad := Failed(failure.Wrap(failure.InternalError, errors.New("s3 credentials expired")))
	assert.Equal(t, "internal server error", bad.Message)
	assert.Equal(t, "internal_error", bad.Error)
	assert.Nil(t, bad.Upload)
}
