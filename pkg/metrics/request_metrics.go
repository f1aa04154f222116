// Based on https://github.com/zsais/go-gin-prometheus/blob/master/middleware.go, trimmed down to the
// request counters the proxy needs

package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reqCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "How many HTTP requests processed, partitioned by status code and HTTP method",
}, []string{"code", "method", "handler", "url"})

var reqDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "http_request_duration_seconds",
	Help: "The HTTP request latencies in seconds",
}, []string{"code", "method", "url"})

var respSize = promauto.NewSummary(prometheus.SummaryOpts{
	Name: "http_response_size_bytes",
	Help: "The HTTP response sizes in bytes",
})

// UnmatchedPath labels requests no route matched, so scanners can't grow the label set.
const UnmatchedPath = "unmatched"

// requestPathMapper uses the route pattern so file names don't become label values.
func requestPathMapper(c *gin.Context) string {
	if url := c.FullPath(); url != "" {
		return url
	}
	return UnmatchedPath
}

func PromReqMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		elapsed := float64(time.Since(start)) / float64(time.Second)

		url := requestPathMapper(c)
		reqDur.WithLabelValues(status, c.Request.Method, url).Observe(elapsed)
		reqCount.WithLabelValues(status, c.Request.Method, c.HandlerName(), url).Inc()
		if size := c.Writer.Size(); size > 0 {
			respSize.Observe(float64(size))
		}
	}
}
