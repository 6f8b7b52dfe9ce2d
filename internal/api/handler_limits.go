package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"timeoff-scheduler-backend/internal/apperr"
	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/parse"
)

type putLimitRequest struct {
	Date       string      `json:"date"`
	Role       model.Role  `json:"role"`
	MaxAllowed json.Number `json:"max_allowed"`
}

// PutLimit handles PUT /api/limits. max_allowed is checked here so fractional
// or negative numbers never reach the service.
func (h *Handler) PutLimit(c *gin.Context) {
	var req putLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	if req.MaxAllowed == "" {
		h.respondError(c, apperr.NewValidation("max_allowed", "is required"))
		return
	}
	maxAllowed, err := parse.ParseMaxAllowed(req.MaxAllowed.String())
	if err != nil {
		h.respondError(c, apperr.NewValidation("max_allowed", err.Error()))
		return
	}

	limit, err := h.svc.SetLimit(c.Request.Context(), req.Date, req.Role, maxAllowed)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, limit)
}
