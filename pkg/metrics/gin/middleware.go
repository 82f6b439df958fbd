package gin

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RigelNana/backdrop/pkg/metrics"
)

// PrometheusMiddleware 为 Gin 添加 Prometheus 指标
// Unmatched paths share one label so arbitrary URLs cannot blow up the
// label space.
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		statusCode := strconv.Itoa(c.Writer.Status())
		metrics.RecordRequest(serviceName, c.Request.Method+" "+route, statusCode, time.Since(start))
	}
}
