package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

func observedRouter(t *testing.T) (*gin.Engine, *observer.ObservedLogs, map[string]string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	seen := map[string]string{}
	capture := func(status int) gin.HandlerFunc {
		return func(c *gin.Context) {
			for _, k := range []string{"run_id", "match_id", "configuration_id"} {
				if v := c.GetString(k); v != "" {
					seen[k] = v
				}
			}
			c.Status(status)
		}
	}
	r := gin.New()
	r.Use(AttachTraceContext(), RequestLogger(log))
	r.GET("/healthcheck", capture(http.StatusOK))
	r.POST("/api/runs/:id/cancel", capture(http.StatusOK))
	r.POST("/api/rating/matches/:id/submit", capture(http.StatusConflict))
	return r, logs, seen
}

func TestRequestContextTagsRunAndEchoesIDs(t *testing.T) {
	r, logs, seen := observedRouter(t)
	runID := uuid.NewString()

	req := httptest.NewRequest(http.MethodPost, "/api/runs/"+runID+"/cancel", nil)
	req.Header.Set(headerRequestID, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(headerRequestID))
	assert.NotEmpty(t, rec.Header().Get(headerTraceID))
	assert.Equal(t, map[string]string{"run_id": runID}, seen)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, runID, fields["run_id"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "/api/runs/:id/cancel", fields["route"])
	assert.NotContains(t, fields, "match_id")
}

func TestRequestLoggerTagsMatchAndWarnsOnConflict(t *testing.T) {
	r, logs, seen := observedRouter(t)
	matchID := uuid.NewString()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/rating/matches/"+matchID+"/submit", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, matchID, seen["match_id"])
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, matchID, entries[0].ContextMap()["match_id"])
	assert.NotContains(t, entries[0].ContextMap(), "run_id")
}

func TestRequestLoggerQuietsHealthChecks(t *testing.T) {
	r, logs, seen := observedRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, seen)
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
}
