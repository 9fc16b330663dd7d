package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glycopilot/glycopilot-api/internal/config"
	"github.com/stretchr/testify/assert"
)

func corsRouter(cfg config.CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func preflight(r *gin.Engine, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCORS_FollowsConfig(t *testing.T) {
	r := corsRouter(config.CORSConfig{
		Origins: []string{"https://app.glycopilot.io"},
		Methods: []string{"GET", "POST"},
		Headers: []string{"Authorization", "Content-Type"},
		MaxAge:  time.Hour,
	})

	rec := preflight(r, "https://app.glycopilot.io")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.glycopilot.io", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = preflight(r, "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORS_Wildcard(t *testing.T) {
	r := corsRouter(config.CORSConfig{
		Origins: []string{"*"},
		Methods: []string{"GET"},
		MaxAge:  time.Minute,
	})

	rec := preflight(r, "https://anything.example.com")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
