package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/whisperd/errors"
)

// RespondWithError writes err as a structured error body. A body read past
// the size limit becomes PAYLOAD_TOO_LARGE; errors that are not AppErrors
// become INTERNAL_ERROR.
func RespondWithError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	appErr, ok := apperrors.AsAppError(err)
	switch {
	case ok:
	case errors.As(err, &maxErr):
		// The reader stops at the limit, so the real size is unknown.
		appErr = apperrors.PayloadTooLarge(maxErr.Limit+1, maxErr.Limit).WithCause(err)
	default:
		appErr = apperrors.Internal(err)
	}
	for k, vs := range appErr.Headers() {
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
}

// RespondOK sends a 200 with data as the body.
func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
