package trace

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/log"
)

func newRouter(buf *bytes.Buffer) (*gin.Engine, *Middleware) {
	gin.SetMode(gin.TestMode)
	cfg := log.DefaultConfig()
	cfg.Format = "json"
	cfg.Output = buf
	m := NewMiddleware(log.New(cfg))

	r := gin.New()
	r.Use(m.Handler())
	r.GET("/ok", func(c *gin.Context) {
		c.Set(log.FieldOwner, "alice")
		log.FromContext(c.Request.Context()).Info("inside handler")
		c.Status(http.StatusOK)
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r, m
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestHandler_PropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	r, _ := newRouter(&buf)

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderRequestID, "req_fixed")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req_fixed", w.Header().Get(HeaderRequestID))
	entries := lines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "inside handler", entries[0]["msg"])
	assert.Equal(t, "req_fixed", entries[0][log.FieldRequestID])
	assert.Equal(t, "HTTP request completed", entries[1]["msg"])
	assert.Equal(t, "alice", entries[1][log.FieldOwner])
	assert.Equal(t, "/ok", entries[1][log.FieldPath])
}

func TestHandler_GeneratesRequestIDAndCountsErrors(t *testing.T) {
	var buf bytes.Buffer
	r, m := newRouter(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.True(t, strings.HasPrefix(w.Header().Get(HeaderRequestID), "req_"))
	entries := lines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0]["level"])

	metrics := m.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalRequests)
	assert.Equal(t, int64(1), metrics.ServerErrors)
}

func TestGenerateRequestID_Unique(t *testing.T) {
	assert.NotEqual(t, GenerateRequestID(), GenerateRequestID())
}
