package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 2)
	r := gin.New()
	r.Use(RateLimiter(limiter))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", "", nil).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", "", nil).Code)

	w := perform(r, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"too many requests","kind":"transient"}`, w.Body.String())
}

func TestIPRateLimiter_Prune(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.GetLimiter("10.0.0.1")
	now = now.Add(10 * time.Minute)
	limiter.GetLimiter("10.0.0.2")

	assert.Equal(t, 2, limiter.Len())
	assert.Equal(t, 1, limiter.Prune(5*time.Minute))
	assert.Equal(t, 1, limiter.Len())
}

func TestIdempotency(t *testing.T) {
	var calls int32
	r := gin.New()
	r.Use(Idempotency(cache.New(time.Minute, time.Minute), time.Minute))
	r.POST("/items", func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		body, _ := c.GetRawData()
		c.JSON(http.StatusCreated, gin.H{"call": n, "body": string(body)})
	})
	r.POST("/boom", func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "down"})
	})
	r.GET("/items", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"call": atomic.AddInt32(&calls, 1)})
	})

	key := map[string]string{IdempotencyKeyHeader: "abc"}

	t.Run("replays the first response", func(t *testing.T) {
		first := perform(r, http.MethodPost, "/items", `{"a":1}`, key)
		second := perform(r, http.MethodPost, "/items", `{"a":1}`, key)

		assert.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.JSONEq(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("different body conflicts", func(t *testing.T) {
		w := perform(r, http.MethodPost, "/items", `{"a":2}`, key)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("no key runs every time", func(t *testing.T) {
		perform(r, http.MethodPost, "/items", `{"a":1}`, nil)
		perform(r, http.MethodPost, "/items", `{"a":1}`, nil)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("reads are untouched", func(t *testing.T) {
		perform(r, http.MethodGet, "/items", "", key)
		perform(r, http.MethodGet, "/items", "", key)
		assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	})

	t.Run("server errors are not stored", func(t *testing.T) {
		boomKey := map[string]string{IdempotencyKeyHeader: "boom"}
		perform(r, http.MethodPost, "/boom", `{}`, boomKey)
		perform(r, http.MethodPost, "/boom", `{}`, boomKey)
		assert.Equal(t, int32(7), atomic.LoadInt32(&calls))
	})

	t.Run("oversized key", func(t *testing.T) {
		w := perform(r, http.MethodPost, "/items", `{}`, map[string]string{IdempotencyKeyHeader: strings.Repeat("k", 129)})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdmin(t *testing.T) {
	newRouter := func(token string) *gin.Engine {
		r := gin.New()
		r.Use(Admin(token))
		r.GET("/whoami", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"admin": IsAdmin(c)}) })
		r.POST("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}

	r := newRouter("s3cret")
	assert.JSONEq(t, `{"admin":true}`, perform(r, http.MethodGet, "/whoami", "", map[string]string{AdminTokenHeader: "s3cret"}).Body.String())
	assert.JSONEq(t, `{"admin":false}`, perform(r, http.MethodGet, "/whoami", "", map[string]string{AdminTokenHeader: "wrong"}).Body.String())
	assert.JSONEq(t, `{"admin":false}`, perform(r, http.MethodGet, "/whoami", "", nil).Body.String())

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodPost, "/admin", "", map[string]string{AdminTokenHeader: "s3cret"}).Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodPost, "/admin", "", nil).Code)

	// no configured token means nobody is admin
	open := newRouter("")
	assert.Equal(t, http.StatusForbidden, perform(open, http.MethodPost, "/admin", "", map[string]string{AdminTokenHeader: ""}).Code)
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	perform(r, http.MethodGet, "/ok", "", nil)
	perform(r, http.MethodGet, "/missing", "", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(http.StatusNotFound), entries[1].ContextMap()["status"])
	assert.Equal(t, "/missing", entries[1].ContextMap()["path"])
}
