package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"timeoff-scheduler-backend/internal/apperr"
	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/parse"
)

// GetAvailability handles GET /api/availability?month=YYYY-MM&role=.
func (h *Handler) GetAvailability(c *gin.Context) {
	raw := c.Query("month")
	if raw == "" {
		h.respondError(c, apperr.NewValidation("month", "is required"))
		return
	}
	m, err := parse.ParseMonth(raw)
	if err != nil {
		h.respondError(c, apperr.NewValidation("month", err.Error()))
		return
	}

	view, err := h.svc.MonthAvailability(c.Request.Context(), m.Year, m.Month, model.Role(c.Query("role")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetDateDetail handles GET /api/dates/:date?role=.
func (h *Handler) GetDateDetail(c *gin.Context) {
	detail, err := h.svc.DateDetail(c.Request.Context(), c.Param("date"), model.Role(c.Query("role")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
