package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerCarriesRunHandle(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.POST("/api/battery/:id/speech/start", func(c *gin.Context) {
		_ = c.Error(routeError("already recording"))
		c.JSON(http.StatusConflict, gin.H{"error": "already recording"})
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/battery/run-42/speech/start", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	run := entries[0]
	assert.Equal(t, zapcore.WarnLevel, run.Level)
	fields := run.ContextMap()
	assert.Equal(t, "run-42", fields["handle"])
	assert.Equal(t, int64(http.StatusConflict), fields["status"])
	assert.Contains(t, fields["errors"], "already recording")

	health := entries[1]
	assert.Equal(t, zapcore.DebugLevel, health.Level)
	assert.NotContains(t, health.ContextMap(), "handle")
}

type routeError string

func (e routeError) Error() string { return string(e) }
