package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"timeoff-scheduler-backend/config"
	"timeoff-scheduler-backend/internal/mw"
)

// rateLimitIdle is how long an IP may stay quiet before its limiter is dropped.
const rateLimitIdle = 10 * time.Minute

// NewRouter creates and configures a new Gin router. Idle rate limiters are
// pruned until ctx is done.
func NewRouter(ctx context.Context, handler *Handler, cfg config.ServerConfig, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(log))

	limit := rate.Limit(cfg.RateLimitPerSec)
	if cfg.RateLimitPerSec <= 0 {
		limit = rate.Inf
	}
	limiter := mw.NewIPRateLimiter(limit, cfg.RateLimitBurst)
	go pruneLimiters(ctx, limiter, log)
	rateLimiter := mw.RateLimiter(limiter)

	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	idempotency := mw.Idempotency(cache.New(ttl, 2*ttl), ttl)

	r.GET("/healthz", handler.Health)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Admin(cfg.AdminToken))
	{
		api.POST("/requests", idempotency, handler.SubmitRequest)
		api.DELETE("/requests/:id", handler.DeleteRequest)
		api.GET("/availability", handler.GetAvailability)
		api.GET("/dates/:date", handler.GetDateDetail)

		admin := api.Group("", mw.RequireAdmin())
		admin.POST("/requests/:id/approve", handler.ApproveRequest)
		admin.POST("/requests/:id/reject", handler.RejectRequest)
		admin.PUT("/limits", idempotency, handler.PutLimit)

		admin.GET("/subscriptions", handler.GetSubscription)
		admin.PUT("/subscriptions", handler.PutSubscription)
		admin.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

func pruneLimiters(ctx context.Context, limiter *mw.IPRateLimiter, log *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := limiter.Prune(rateLimitIdle); n > 0 {
				log.Debug("pruned idle rate limiters", zap.Int("removed", n), zap.Int("remaining", limiter.Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}
