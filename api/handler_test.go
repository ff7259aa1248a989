package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/whisperd/errors"
	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/server/middleware"
	"github.com/kbukum/whisperd/transcription"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTranscriber struct {
	mu       sync.Mutex
	last     transcription.Request
	calls    int
	rejected []apperrors.ErrorCode
	res      *transcription.Result
	err      error
}

func (f *fakeTranscriber) HandleTranscribe(_ context.Context, req transcription.Request) (*transcription.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeTranscriber) Reject(_ context.Context, err error) *apperrors.AppError {
	appErr := apperrors.From(err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, appErr.Code)
	return appErr
}

func newRouter(svc Transcriber, limit int64) http.Handler {
	r := gin.New()
	NewHandler(svc, Info{
		ServiceName: "whisperd",
		Options:     transcription.Options{ModelSize: "tiny", Compute: transcription.ComputeCPU, BeamSize: 5, Workers: 2},
	}, logger.Nop()).Register(r)
	return middleware.BodySizeLimit(limit)(r)
}

func multipartBody(t *testing.T, filename string, audio []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := w.CreateFormFile(FieldFile, filename)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		if _, err := part.Write(audio); err != nil {
			t.Fatalf("write part failed: %v", err)
		}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField %s failed: %v", k, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer failed: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func post(t *testing.T, h http.Handler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	var body apperrors.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rr.Body.String(), err)
	}
	if string(body.Error.Code) != code {
		t.Errorf("expected code %s, got %s", code, body.Error.Code)
	}
}

func TestTranscribe_Success(t *testing.T) {
	t.Parallel()
	svc := &fakeTranscriber{res: &transcription.Result{
		Filename: "talk.wav",
		Language: "en",
		Duration: 1.5,
		Transcription: transcription.Transcript{
			FullText: "hello world",
			Segments: []transcription.Segment{{ID: 0, Start: 0, End: 1.5, Text: "hello world"}},
		},
	}}
	body, ct := multipartBody(t, "talk.wav", []byte("RIFF"), map[string]string{
		FieldLanguage: "en",
		FieldTask:     "translate",
		FieldBeamSize: "3",
	})

	rr := post(t, newRouter(svc, 1<<20), body, ct)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var res transcription.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if res.Transcription.FullText != "hello world" || res.Filename != "talk.wav" {
		t.Errorf("unexpected result %+v", res)
	}

	got := svc.last
	if !bytes.Equal(got.Audio, []byte("RIFF")) || got.Filename != "talk.wav" {
		t.Errorf("upload not forwarded: %q %q", got.Audio, got.Filename)
	}
	if got.Language != "en" || got.Task != transcription.TaskTranslate || got.BeamSize != 3 {
		t.Errorf("form fields not forwarded: %+v", got)
	}
	if len(svc.rejected) != 0 {
		t.Errorf("unexpected rejections %v", svc.rejected)
	}
}

func TestTranscribe_DefaultTask(t *testing.T) {
	t.Parallel()
	svc := &fakeTranscriber{res: &transcription.Result{}}
	body, ct := multipartBody(t, "a.mp3", []byte("x"), nil)

	rr := post(t, newRouter(svc, 1<<20), body, ct)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.last.Task != transcription.TaskTranscribe {
		t.Errorf("expected default task, got %q", svc.last.Task)
	}
	if svc.last.BeamSize != 0 {
		t.Errorf("expected unset beam size, got %d", svc.last.BeamSize)
	}
}

// Uploads refused while parsing the form never reach HandleTranscribe but
// still go through Reject so they are counted.
func TestTranscribe_RejectedUploads(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		body   func(t *testing.T) (*bytes.Buffer, string)
		limit  int64
		status int
		code   apperrors.ErrorCode
	}{
		{
			name: "missing file",
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return multipartBody(t, "", nil, map[string]string{FieldLanguage: "en"})
			},
			limit:  1 << 20,
			status: http.StatusBadRequest,
			code:   apperrors.ErrCodeInvalidInput,
		},
		{
			name: "not multipart",
			body: func(*testing.T) (*bytes.Buffer, string) {
				return bytes.NewBufferString(`{"file":"x"}`), "application/json"
			},
			limit:  1 << 20,
			status: http.StatusBadRequest,
			code:   apperrors.ErrCodeInvalidInput,
		},
		{
			name: "malformed multipart",
			body: func(*testing.T) (*bytes.Buffer, string) {
				return bytes.NewBufferString("--b\r\nno headers"), "multipart/form-data; boundary=b"
			},
			limit:  1 << 20,
			status: http.StatusBadRequest,
			code:   apperrors.ErrCodeInvalidInput,
		},
		{
			name: "non-integer beam size",
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return multipartBody(t, "a.wav", []byte("x"), map[string]string{FieldBeamSize: "wide"})
			},
			limit:  1 << 20,
			status: http.StatusBadRequest,
			code:   apperrors.ErrCodeInvalidInput,
		},
		{
			name: "body too large",
			body: func(t *testing.T) (*bytes.Buffer, string) {
				return multipartBody(t, "a.wav", bytes.Repeat([]byte("x"), 4096), nil)
			},
			limit:  1024,
			status: http.StatusRequestEntityTooLarge,
			code:   apperrors.ErrCodePayloadTooLarge,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &fakeTranscriber{}
			body, ct := tc.body(t)

			rr := post(t, newRouter(svc, tc.limit), body, ct)
			expectError(t, rr, tc.status, string(tc.code))
			if svc.calls != 0 {
				t.Errorf("HandleTranscribe called %d times", svc.calls)
			}
			if want := []apperrors.ErrorCode{tc.code}; !slices.Equal(svc.rejected, want) {
				t.Errorf("rejections = %v, want %v", svc.rejected, want)
			}
		})
	}
}

func TestTranscribe_ServiceErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"invalid format", apperrors.InvalidFormat(".xyz", transcription.DefaultExtensions), http.StatusBadRequest, "INVALID_FORMAT"},
		{"overloaded", apperrors.Overloaded(2), http.StatusServiceUnavailable, "OVERLOADED"},
		{"not ready", apperrors.NotReady(), http.StatusServiceUnavailable, "NOT_READY"},
		{"decode", apperrors.DecodeFailed(nil), http.StatusUnprocessableEntity, "DECODE_FAILED"},
		{"canceled", apperrors.Canceled(context.Canceled), apperrors.StatusClientClosedRequest, "CANCELED"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &fakeTranscriber{err: tc.err}
			body, ct := multipartBody(t, "a.wav", []byte("x"), nil)
			rr := post(t, newRouter(svc, 1<<20), body, ct)
			expectError(t, rr, tc.code, tc.want)
			if len(svc.rejected) != 0 {
				t.Errorf("service errors are recorded by the service, got rejections %v", svc.rejected)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	t.Parallel()
	rr := httptest.NewRecorder()
	newRouter(&fakeTranscriber{}, 0).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["service"] != "whisperd" || body["model_size"] != "tiny" || body["compute_type"] != "int8" {
		t.Errorf("unexpected info %v", body)
	}
	if body["workers"] != float64(2) {
		t.Errorf("expected 2 workers, got %v", body["workers"])
	}
	if _, ok := body["endpoints"]; !ok {
		t.Error("missing endpoints")
	}
}
