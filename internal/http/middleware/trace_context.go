package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/ratebench-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// Routes whose :id names a run, configuration or match. Longest prefixes first.
var resourceRoutes = []struct {
	prefix string
	key    string
}{
	{"/api/rating/matches/:id", "match_id"},
	{"/api/configurations/:id", "configuration_id"},
	{"/api/runs/:id", "run_id"},
}

// routeResource returns the log/span key and id of the resource the matched route addresses.
func routeResource(c *gin.Context) (key, id string) {
	path := c.FullPath()
	for _, r := range resourceRoutes {
		if strings.HasPrefix(path, r.prefix) {
			return r.key, c.Param("id")
		}
	}
	return "", ""
}

// AttachTraceContext propagates or mints the trace and request ids, echoes them as
// response headers and tags the active span with the addressed resource.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if sc := trace.SpanContextFromContext(ctx); traceID == "" && sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.String("request_id", reqID))
		if key, id := routeResource(c); key != "" && id != "" {
			c.Set(key, id)
			span.SetAttributes(attribute.String(key, id))
		}

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(ctx, &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		}))
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Header(headerTraceID, traceID)
		c.Header(headerRequestID, reqID)
		c.Next()
	}
}
