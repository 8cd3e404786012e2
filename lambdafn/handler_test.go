package lambdafn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bwupload/alert"
	"bwupload/failure"
	"bwupload/pipeline"
	"bwupload/service"
)

type fakeUploader struct {
	got      pipeline.RawRequest
	gotName  string
	calls    int
	named    int
	err      error
	rejected []failure.Kind
	alerts   service.Alerter
}

func (f *fakeUploader) Upload(_ context.Context, req pipeline.RawRequest) (*service.Upload, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.Upload{ID: "id-1", Filename: "photo.png", Width: 10, Height: 10}, nil
}

func (f *fakeUploader) UploadNamed(_ context.Context, filename string, req pipeline.RawRequest) (*service.Upload, error) {
	f.named++
	f.gotName = filename
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.Upload{ID: "id-2", Filename: filename, Width: 10, Height: 10}, nil
}

func (f *fakeUploader) Reject(fe *failure.Error) {
	f.rejected = append(f.rejected, fe.Kind)
	if f.alerts != nil {
		f.alerts.Send(service.Subject(fe.Kind), fe.Error())
	}
}

// slowNotifier records a notification only after a delay.
type slowNotifier struct {
	delay time.Duration
	mu    sync.Mutex
	sent  []string
}

func (n *slowNotifier) Notify(_ context.Context, subject, _ string) error {
	time.Sleep(n.delay)
	n.mu.Lock()
	n.sent = append(n.sent, subject)
	n.mu.Unlock()
	return nil
}

func (n *slowNotifier) subjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func decode(t *testing.T, resp events.APIGatewayProxyResponse) service.Response {
	t.Helper()
	var out service.Response
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	return out
}

func TestHandle_Preflight(t *testing.T) {
	up := &fakeUploader{}
	resp, err := NewHandler(up, nil, 0, zap.NewNop()).Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "OPTIONS"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	assert.Equal(t, "CORS preflight check", decode(t, resp).Message)
	assert.Zero(t, up.calls)
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	up := &fakeUploader{}
	resp, err := NewHandler(up, nil, 0, zap.NewNop()).Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "GET"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Zero(t, up.calls)
}

func TestHandle_PassesBase64BodyThrough(t *testing.T) {
	up := &fakeUploader{}
	body := base64.StdEncoding.EncodeToString([]byte("--XYZ--"))

	resp, err := NewHandler(up, nil, 0, zap.NewNop()).Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      "POST",
		Headers:         map[string]string{"content-type": "multipart/form-data; boundary=XYZ"},
		Body:            body,
		IsBase64Encoded: true,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "multipart/form-data; boundary=XYZ", up.got.ContentType)
	assert.True(t, up.got.IsBase64Encoded)
	assert.Equal(t, body, string(up.got.Body))

	out := decode(t, resp)
	assert.Equal(t, "Successfully uploaded and processed image 'photo.png'.", out.Message)
	require.NotNil(t, out.Upload)
	assert.Equal(t, "id-1", out.Upload.ID)
}

func TestHandle_FailureStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{failure.New(failure.UnsupportedFormat), http.StatusBadRequest},
		{failure.Wrap(failure.Timeout, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("untyped"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		resp, err := NewHandler(&fakeUploader{err: tt.err}, nil, 0, zap.NewNop()).Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "POST"})
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, tt.err.Error())
		assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	}
}

func TestHandle_PayloadTooLarge(t *testing.T) {
	up := &fakeUploader{}
	resp, err := NewHandler(up, nil, 8, zap.NewNop()).Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "POST",
		Body:       "0123456789",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, []failure.Kind{failure.PayloadTooLarge}, up.rejected)
	assert.Zero(t, up.calls)
}

func TestHandle_PaddedBodyAtLimit(t *testing.T) {
	up := &fakeUploader{}
	body := base64.StdEncoding.EncodeToString([]byte("0123456789"))
	require.Equal(t, 16, len(body))

	resp, err := NewHandler(up, nil, 10, zap.NewNop()).Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      "POST",
		Body:            body,
		IsBase64Encoded: true,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, up.rejected)
	assert.Equal(t, 1, up.calls)
}

func TestPayloadSize(t *testing.T) {
	for _, raw := range []string{"", "a", "ab", "abc", "abcd", "0123456789"} {
		enc := base64.StdEncoding.EncodeToString([]byte(raw))
		got := payloadSize(events.APIGatewayProxyRequest{Body: enc, IsBase64Encoded: true})
		assert.Equal(t, int64(len(raw)), got, raw)
	}
	assert.Equal(t, int64(4), payloadSize(events.APIGatewayProxyRequest{Body: "abc="}))
}

func TestHandle_WaitsForAlerts(t *testing.T) {
	notifier := &slowNotifier{delay: 100 * time.Millisecond}
	dispatcher := alert.NewDispatcher(notifier, zap.NewNop())
	up := &fakeUploader{alerts: dispatcher}

	resp, err := NewHandler(up, dispatcher, 4, zap.NewNop()).Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "POST",
		Body:       "0123456789",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, []string{"Invalid Upload"}, notifier.subjects(), "alert must be delivered before Handle returns")
}

func TestHandle_FileNameHeaderSelectsRawPath(t *testing.T) {
	up := &fakeUploader{}
	body := base64.StdEncoding.EncodeToString([]byte("\x89PNG"))

	resp, err := NewHandler(up, nil, 0, zap.NewNop()).Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      "POST",
		Headers:         map[string]string{"file-name": "scan.png"},
		Body:            body,
		IsBase64Encoded: true,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, up.calls)
	assert.Equal(t, 1, up.named)
	assert.Equal(t, "scan.png", up.gotName)
	assert.True(t, up.got.IsBase64Encoded)
	assert.Equal(t, body, string(up.got.Body))
	assert.Equal(t, "Successfully uploaded and processed image 'scan.png'.", decode(t, resp).Message)
}

func TestHeader(t *testing.T) {
	h := map[string]string{"CONTENT-TYPE": "a"}
	assert.Equal(t, "a", header(h, "Content-Type"))
	assert.Empty(t, header(h, "Accept"))
}
