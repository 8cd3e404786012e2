// Package lambdafn adapts the upload service to an API Gateway proxy integration.
package lambdafn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"bwupload/failure"
	"bwupload/pipeline"
	"bwupload/service"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type,File-Name,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
	"Access-Control-Allow-Methods": "POST,OPTIONS",
}

// uploader is satisfied by *service.UploadService.
type uploader interface {
	Upload(ctx context.Context, req pipeline.RawRequest) (*service.Upload, error)
	UploadNamed(ctx context.Context, filename string, req pipeline.RawRequest) (*service.Upload, error)
	Reject(fe *failure.Error)
}

// waiter is satisfied by *alert.Dispatcher.
type waiter interface {
	Wait()
}

// fileNameHeader selects the raw ingestion path: the body is the image itself.
const fileNameHeader = "File-Name"

type Handler struct {
	svc      uploader
	alerts   waiter
	maxBytes int64
	log      *zap.Logger
}

// NewHandler returns a Handler. alerts may be nil; otherwise every invocation
// waits for it before returning, because Lambda freezes the execution
// environment as soon as the handler returns.
func NewHandler(svc uploader, alerts waiter, maxBytes int64, log *zap.Logger) *Handler {
	return &Handler{svc: svc, alerts: alerts, maxBytes: maxBytes, log: log}
}

// Handle never returns an error: every outcome, including internal failures,
// is expressed as a proxy response so API Gateway does not substitute its own 502.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if h.alerts != nil {
		defer h.alerts.Wait()
	}
	return h.handle(ctx, req), nil
}

func (h *Handler) handle(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	switch req.HTTPMethod {
	case http.MethodOptions:
		return respond(http.StatusOK, service.Response{Message: "CORS preflight check"})
	case http.MethodPost:
	default:
		return respond(http.StatusMethodNotAllowed, service.Response{Message: "method not allowed"})
	}

	if h.maxBytes > 0 && payloadSize(req) > h.maxBytes {
		fe := failure.Newf(failure.PayloadTooLarge, "request body exceeds %d bytes", h.maxBytes)
		h.svc.Reject(fe)
		return respond(fe.Kind.Status(), service.Failed(fe))
	}

	raw := pipeline.RawRequest{
		Body:            []byte(req.Body),
		ContentType:     header(req.Headers, "Content-Type"),
		IsBase64Encoded: req.IsBase64Encoded,
	}
	var (
		up  *service.Upload
		err error
	)
	if name := header(req.Headers, fileNameHeader); name != "" {
		up, err = h.svc.UploadNamed(ctx, name, raw)
	} else {
		up, err = h.svc.Upload(ctx, raw)
	}
	if err != nil {
		fe := failure.As(err)
		return respond(fe.Kind.Status(), service.Failed(fe))
	}
	h.log.Debug("Lambda upload complete", zap.String("request_id", req.RequestContext.RequestID), zap.String("id", up.ID))
	return respond(http.StatusOK, service.Succeeded(up))
}

func payloadSize(req events.APIGatewayProxyRequest) int64 {
	if req.IsBase64Encoded {
		n := base64.StdEncoding.DecodedLen(len(req.Body))
		for i := 0; i < 2 && len(req.Body) > i && req.Body[len(req.Body)-1-i] == '='; i++ {
			n--
		}
		return int64(n)
	}
	return int64(len(req.Body))
}

// header looks a name up case-insensitively; API Gateway passes headers through
// with whatever casing the client used.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func respond(status int, body service.Response) events.APIGatewayProxyResponse {
	headers := make(map[string]string, len(corsHeaders)+1)
	for k, v := range corsHeaders {
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"

	data, err := json.Marshal(body)
	if err != nil {
		data = []byte(`{"message":"internal server error"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(data),
	}
}
