package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/whisperd/errors"
	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/server"
	"github.com/kbukum/whisperd/server/endpoint"
	"github.com/kbukum/whisperd/transcription"
)

// Multipart form fields accepted by POST /transcribe.
const (
	FieldFile     = "file"
	FieldLanguage = "language"
	FieldTask     = "task"
	FieldBeamSize = "beam_size"
)

// Transcriber runs one transcription request. Reject records an upload
// refused before it reached HandleTranscribe.
type Transcriber interface {
	HandleTranscribe(ctx context.Context, req transcription.Request) (*transcription.Result, error)
	Reject(ctx context.Context, err error) *apperrors.AppError
}

// Info describes the running service for GET /.
type Info struct {
	ServiceName string
	Options     transcription.Options
}

// Handler serves the transcription routes.
type Handler struct {
	svc  Transcriber
	info Info
	log  *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc Transcriber, info Info, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{svc: svc, info: info, log: log.WithComponent("api")}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", endpoint.Info(h.info.ServiceName, h.details))
	r.POST("/transcribe", h.Transcribe)
}

func (h *Handler) details() map[string]any {
	return map[string]any{
		"model_size":   h.info.Options.ModelSize,
		"compute_type": h.info.Options.Compute.ComputeType(),
		"workers":      h.info.Options.Workers,
		"endpoints": map[string]string{
			"transcribe": "POST /transcribe",
			"health":     "GET /healthz",
			"ready":      "GET /readyz",
			"metrics":    "GET /metrics",
		},
	}
}

// Transcribe handles POST /transcribe.
func (h *Handler) Transcribe(c *gin.Context) {
	req, err := h.readRequest(c)
	if err != nil {
		server.RespondWithError(c, h.svc.Reject(c.Request.Context(), err))
		return
	}

	res, err := h.svc.HandleTranscribe(c.Request.Context(), req)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, res)
}

func (h *Handler) readRequest(c *gin.Context) (transcription.Request, error) {
	fh, err := c.FormFile(FieldFile)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			// The reader stops at the limit, so the real size is unknown.
			return transcription.Request{}, apperrors.PayloadTooLarge(maxErr.Limit+1, maxErr.Limit).WithCause(err)
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return transcription.Request{}, apperrors.InvalidInput(FieldFile, "an audio file is required")
		default:
			return transcription.Request{}, apperrors.InvalidInput(FieldFile, "malformed multipart body").WithCause(err)
		}
	}

	f, err := fh.Open()
	if err != nil {
		return transcription.Request{}, apperrors.Internal(err)
	}
	defer f.Close()

	audio, err := io.ReadAll(f)
	if err != nil {
		return transcription.Request{}, apperrors.Internal(err)
	}

	req := transcription.Request{
		Audio:    audio,
		Filename: fh.Filename,
		Language: c.PostForm(FieldLanguage),
		Task:     transcription.Task(c.DefaultPostForm(FieldTask, string(transcription.TaskTranscribe))),
	}
	if raw := c.PostForm(FieldBeamSize); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return transcription.Request{}, apperrors.InvalidInput(FieldBeamSize, "must be an integer")
		}
		req.BeamSize = n
	}

	h.log.WithContext(c.Request.Context()).Debug("upload received", logger.Fields(
		logger.FieldFilename, req.Filename,
		logger.FieldBytes, len(req.Audio),
	))
	return req, nil
}
