package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Metrics serves a metrics exposition handler, typically the Prometheus
// handler of the metrics registry.
func Metrics(h http.Handler) gin.HandlerFunc {
	return gin.WrapH(h)
}
