package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cuemby/igniteclient/pkg/ierr"
	"github.com/cuemby/igniteclient/pkg/metrics"
)

// Response is what Execute/ExecuteGet return: either a body and the
// session's taxonomy code for a completed round trip, or just the code
// for a transport-level failure (no body, no HTTP status).
type Response struct {
	StatusCode int
	Body       []byte
	Code       ierr.Code
	Header     http.Header
}

// HttpRequest is a builder over a single outbound call: URL, timeout,
// headers, postfields, and multipart form parts. A request created but
// never executed leaks nothing — every field here is a plain value.
type HttpRequest struct {
	session *HttpSession

	URL        string
	Timeout    time.Duration
	Headers    map[string]string
	PostFields []byte

	multipartFields map[string]string
	multipartFiles  map[string][]byte
}

// NewHttpRequest builds a request bound to session.
func NewHttpRequest(session *HttpSession) *HttpRequest {
	return &HttpRequest{session: session, Headers: map[string]string{}}
}

// AddMultipartField adds a plain form field to the request's multipart
// body, switching Execute/ExecuteGet to multipart/form-data encoding.
func (r *HttpRequest) AddMultipartField(name, value string) {
	if r.multipartFields == nil {
		r.multipartFields = map[string]string{}
	}
	r.multipartFields[name] = value
}

// AddMultipartFile adds a file part to the request's multipart body.
func (r *HttpRequest) AddMultipartFile(fieldName string, data []byte) {
	if r.multipartFiles == nil {
		r.multipartFiles = map[string][]byte{}
	}
	r.multipartFiles[fieldName] = data
}

func (r *HttpRequest) isMultipart() bool {
	return len(r.multipartFields) > 0 || len(r.multipartFiles) > 0
}

func (r *HttpRequest) buildBody() (io.Reader, string, error) {
	if !r.isMultipart() {
		return bytes.NewReader(r.PostFields), "", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range r.multipartFields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("multipart field %s: %w", name, err)
		}
	}
	for field, data := range r.multipartFiles {
		part, err := w.CreateFormFile(field, field)
		if err != nil {
			return nil, "", fmt.Errorf("multipart file %s: %w", field, err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("multipart file %s write: %w", field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("multipart close: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Execute performs a POST.
func (r *HttpRequest) Execute() Response {
	return r.do(http.MethodPost)
}

// ExecuteGet performs a GET. PostFields and multipart parts, if set, are
// ignored for a GET.
func (r *HttpRequest) ExecuteGet() Response {
	return r.do(http.MethodGet)
}

func (r *HttpRequest) do(method string) Response {
	timer := metrics.NewTimer()
	var resp Response
	defer func() {
		metrics.HTTPRequestsTotal.WithLabelValues(method, resp.Code.String()).Inc()
		timer.ObserveDurationVec(metrics.HTTPRequestDuration, method)
	}()

	var body io.Reader
	contentType := ""

	if method == http.MethodPost {
		b, ct, err := r.buildBody()
		if err != nil {
			r.session.setLastErrorCode(ierr.InvalidInput)
			resp = Response{Code: ierr.InvalidInput}
			return resp
		}
		body, contentType = b, ct
	}

	ctx := context.Background()
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		r.session.setLastErrorCode(ierr.InvalidInput)
		resp = Response{Code: ierr.InvalidInput}
		return resp
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	httpResp, err := r.session.client.Do(req)
	if err != nil {
		code := classifyTransportError(ctx, err)
		r.session.setLastErrorCode(code)
		resp = Response{Code: code}
		return resp
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		r.session.setLastErrorCode(ierr.ResponseData)
		resp = Response{Code: ierr.ResponseData, StatusCode: httpResp.StatusCode}
		return resp
	}

	code := classifyStatus(httpResp.StatusCode)
	r.session.setLastErrorCode(code)
	resp = Response{StatusCode: httpResp.StatusCode, Body: data, Code: code, Header: httpResp.Header}
	return resp
}

// classifyStatus maps an HTTP status code to the shared taxonomy: 5xx,
// 408, and 404 are server-class (retryable under backoff), 401/403 are
// access errors.
func classifyStatus(status int) ierr.Code {
	switch {
	case status >= 200 && status < 300:
		return ierr.Ok
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ierr.Access
	case status == http.StatusRequestTimeout || status == http.StatusNotFound || status >= 500:
		return ierr.Server
	default:
		return ierr.Other
	}
}

func classifyTransportError(ctx context.Context, err error) ierr.Code {
	if ctx.Err() != nil {
		return ierr.Timeout
	}
	return ierr.Network
}
