package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRateLimiter_Throttles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(6).Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestRateLimiter_DisabledPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(0).Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestRequestLogger_RedactsSecrets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/shopify_confirm", func(c *gin.Context) {
		_, ok := c.Get(RequestIDKey)
		require.True(t, ok)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shopify_confirm?code=abc&hmac=deadbeef&shop=acme.example", nil))
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	path := entries[0].ContextMap()["path"].(string)
	require.NotContains(t, path, "abc")
	require.NotContains(t, path, "deadbeef")

	parsed, err := url.Parse(path)
	require.NoError(t, err)
	require.Equal(t, "acme.example", parsed.Query().Get("shop"))
	require.Equal(t, "REDACTED", parsed.Query().Get("code"))
}

func TestRequestLogger_RedactsRedirectLocation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/shopify_install", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "https://acme.example/admin/oauth/authorize?client_id=client-1&state=n1")
	})
	r.GET("/login", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "https://idp.example/oauth2/auth?login_verifier=v-123")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/shopify_install?shop=acme.example", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/login?login_challenge=ch-1", nil))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)

	install, err := url.Parse(entries[0].ContextMap()["location"].(string))
	require.NoError(t, err)
	require.Equal(t, "acme.example", install.Host)
	require.Equal(t, "client-1", install.Query().Get("client_id"))
	require.Equal(t, "REDACTED", install.Query().Get("state"))

	login := entries[1].ContextMap()["location"].(string)
	require.NotContains(t, login, "v-123")
	require.Contains(t, login, "login_verifier=REDACTED")
}
