package mw

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// IdempotencyKeyHeader is the request header carrying the client's key.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

type cachedResponse struct {
	hash    string
	done    bool
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a mutating request that repeats
// an Idempotency-Key, so a retried submit never creates a second request.
// Reusing a key with a different body is a conflict. Server errors are not
// stored, leaving the key free for another attempt.
func Idempotency(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":  "Idempotency-Key too long",
				"kind":   "validation",
				"fields": gin.H{"Idempotency-Key": "must be at most 128 characters"},
			})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body", "kind": "validation"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		h := sha256.New()
		h.Write([]byte(c.Request.Method))
		h.Write([]byte{'\n'})
		h.Write([]byte(c.Request.URL.RequestURI()))
		h.Write([]byte{'\n'})
		h.Write(body)
		reqHash := hex.EncodeToString(h.Sum(nil))

		cacheKey := c.ClientIP() + "|" + c.Request.Method + "|" + c.FullPath() + "|" + key

		// Add only succeeds for the first request with this key.
		if err := store.Add(cacheKey, cachedResponse{hash: reqHash}, ttl); err != nil {
			v, found := store.Get(cacheKey)
			if !found {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this Idempotency-Key is in progress", "kind": "invalid_state"})
				return
			}
			cached := v.(cachedResponse)
			switch {
			case cached.hash != reqHash:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Idempotency-Key reused with a different request", "kind": "invalid_state"})
			case !cached.done:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this Idempotency-Key is in progress", "kind": "invalid_state"})
			default:
				for k, v := range cached.headers {
					c.Writer.Header()[k] = v
				}
				c.Writer.Header().Set("Idempotent-Replayed", "true")
				c.Writer.WriteHeader(cached.status)
				c.Writer.Write(cached.body)
				c.Abort()
			}
			return
		}

		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if blw.Status() >= http.StatusInternalServerError {
			store.Delete(cacheKey)
			return
		}
		store.Set(cacheKey, cachedResponse{
			hash:    reqHash,
			done:    true,
			status:  blw.Status(),
			headers: blw.Header().Clone(),
			body:    blw.body.Bytes(),
		}, ttl)
	}
}
