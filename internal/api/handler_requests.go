package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/mw"
	"timeoff-scheduler-backend/internal/timeoff"
)

// DeletionSecretHeader may carry the secret instead of the request body.
const DeletionSecretHeader = "X-Deletion-Secret"

type submitRequest struct {
	RequesterName  string            `json:"requester_name"`
	Date           string            `json:"date"`
	Role           model.Role        `json:"role"`
	Kind           model.RequestKind `json:"kind"`
	Reason         string            `json:"reason"`
	DeletionSecret string            `json:"deletion_secret"`
}

// SubmitRequest handles POST /api/requests.
func (h *Handler) SubmitRequest(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return
	}

	r, err := h.svc.Submit(c.Request.Context(), timeoff.SubmitInput{
		RequesterName:  req.RequesterName,
		Date:           req.Date,
		Role:           req.Role,
		Kind:           req.Kind,
		Reason:         req.Reason,
		DeletionSecret: req.DeletionSecret,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, timeoff.NewRequestView(*r))
}

// ApproveRequest handles POST /api/requests/:id/approve.
func (h *Handler) ApproveRequest(c *gin.Context) {
	r, err := h.svc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, timeoff.NewRequestView(*r))
}

// RejectRequest handles POST /api/requests/:id/reject.
func (h *Handler) RejectRequest(c *gin.Context) {
	r, err := h.svc.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, timeoff.NewRequestView(*r))
}

type deleteRequest struct {
	Secret string `json:"secret"`
}

// DeleteRequest handles DELETE /api/requests/:id. The body is optional.
func (h *Handler) DeleteRequest(c *gin.Context) {
	secret := c.GetHeader(DeletionSecretHeader)
	if secret == "" && c.Request.ContentLength != 0 {
		var req deleteRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			h.respondError(c, bindError(err))
			return
		}
		secret = req.Secret
	}

	err := h.svc.Delete(c.Request.Context(), c.Param("id"), timeoff.DeleteOptions{
		IsAdmin: mw.IsAdmin(c),
		Secret:  secret,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
