package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route templates keep label cardinality bounded (/sessions/:id).
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start))
	}
}

// Timer measures capability handler duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	topic   string
}

// NewTimer creates a new timer. A nil metrics makes Stop a no-op.
func NewTimer(metrics *Metrics, topic string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		topic:   topic,
	}
}

// Stop records the elapsed time and returns it
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.RecordHandler(t.topic, duration)
	}
	return duration
}
