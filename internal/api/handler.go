package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"timeoff-scheduler-backend/internal/apperr"
	"timeoff-scheduler-backend/internal/store"
	"timeoff-scheduler-backend/internal/timeoff"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc     *timeoff.Service
	store   store.Store
	webpush *webpush.Options
	log     *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *timeoff.Service, s store.Store, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc:     svc,
		store:   s,
		webpush: webpushOptions,
		log:     log,
	}
}

// respondError writes err as {"error", "kind", "fields"} with the mapped status.
func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)

	body := gin.H{"error": err.Error(), "kind": kind}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "internal server error"
	}
	c.AbortWithStatusJSON(status, body)
}

// bindError wraps a JSON binding failure as a validation error.
func bindError(err error) error {
	return apperr.NewValidation("body", err.Error())
}

// Health reports whether the database answers.
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
