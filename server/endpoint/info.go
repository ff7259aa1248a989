package endpoint

import (
	"maps"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisperd/version"
)

// startTime records when the process started for uptime calculation.
var startTime = time.Now()

// Info returns a handler describing the service. details, when set, is
// merged over the base fields on every request.
func Info(serviceName string, details func() map[string]any) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := map[string]any{
			"service": serviceName,
			"version": version.Get().Version,
			"uptime":  time.Since(startTime).Round(time.Second).String(),
		}
		if details != nil {
			maps.Copy(body, details())
		}
		c.JSON(http.StatusOK, body)
	}
}
