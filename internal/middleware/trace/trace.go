// Package trace tags every request with an id and logs its outcome.
package trace

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"tally/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// Middleware handles request tracing and logging
type Middleware struct {
	logger  *log.Logger
	metrics *Metrics
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests int64
	ServerErrors  int64
}

// NewMiddleware creates a new trace middleware
func NewMiddleware(logger *log.Logger) *Middleware {
	if logger == nil {
		logger = log.Discard()
	}
	return &Middleware{
		logger:  logger.WithComponent(log.ComponentHTTP),
		metrics: &Metrics{},
	}
}

// Handler assigns a request id, stores a request-scoped logger in the
// context and logs the completed request at a level matching its status.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" || len(requestID) > 64 {
			requestID = GenerateRequestID()
		}
		c.Header(HeaderRequestID, requestID)

		reqLogger := m.logger.With(log.FieldRequestID, requestID)
		c.Request = c.Request.WithContext(log.WithLogger(c.Request.Context(), reqLogger))
		c.Set(log.FieldRequestID, requestID)

		atomic.AddInt64(&m.metrics.TotalRequests, 1)
		c.Next()

		status := c.Writer.Status()
		if status >= 500 {
			atomic.AddInt64(&m.metrics.ServerErrors, 1)
		}

		fields := log.NewFields().
			WithHTTPRequest(c.Request.Method, c.FullPath(), c.ClientIP()).
			WithHTTPResponse(status, time.Since(start).Milliseconds())
		if owner, ok := c.Get(log.FieldOwner); ok {
			fields.WithOwner(fmt.Sprint(owner))
		}
		if len(c.Errors) > 0 {
			fields.WithError(c.Errors.Last())
		}
		reqLogger.Log(c.Request.Context(), log.LevelForStatus(status), "HTTP request completed", fields.ToSlice()...)
	}
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests: atomic.LoadInt64(&m.metrics.TotalRequests),
		ServerErrors:  atomic.LoadInt64(&m.metrics.ServerErrors),
	}
}
