package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/annel0/arena-combat/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireToken(t *testing.T) {
	issuer, err := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour, []string{"ops:key"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/read", RequireToken(issuer, false), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/write", RequireToken(issuer, true), func(c *gin.Context) {
		claims := c.MustGet(ClaimsKey).(*auth.Claims)
		c.String(http.StatusOK, claims.ClientID)
	})

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/read", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/read", "garbage").Code)

	observer, _, err := issuer.Issue("viewer", false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/read", observer).Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodPost, "/write", observer).Code)

	operator, _, err := issuer.Exchange("key")
	require.NoError(t, err)
	w := perform(r, http.MethodPost, "/write", operator)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())
}

func TestRequireTokenDisabled(t *testing.T) {
	issuer, err := auth.NewTokenIssuer("", time.Hour, nil)
	require.NoError(t, err)

	r := gin.New()
	r.POST("/write", RequireToken(issuer, true), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodPost, "/write", "").Code)
}

func TestPrometheusMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMiddleware("test", reg, reg)

	r := gin.New()
	r.Use(pm.Handler())
	pm.RegisterMetricsEndpoint(r)
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	perform(r, http.MethodGet, "/ok", "")
	perform(r, http.MethodGet, "/fail", "")
	perform(r, http.MethodGet, "/nowhere", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.reqErrors.WithLabelValues("GET", "/fail", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.reqErrors.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.reqInflight))

	w := perform(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "test_http_request_duration_seconds"))
}

func TestRequestLoggerSetsTraceID(t *testing.T) {
	r := gin.New()
	r.Use(NewRequestLogger(nil).Handler())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(TraceIDKey)) })

	w := perform(r, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Body.String(), 36)
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Trace-Id"))
}
