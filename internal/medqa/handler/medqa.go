// Package handler provides HTTP handlers for the MedQA service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/medqa/internal/medqa/biz"
	"github.com/kart-io/medqa/internal/model"
	"github.com/kart-io/medqa/pkg/errors"
)

// QAHandler handles MedQA HTTP requests.
type QAHandler struct {
	service        biz.Service
	requestTimeout time.Duration
}

// NewQAHandler creates a new QAHandler.
func NewQAHandler(service biz.Service, requestTimeout time.Duration) *QAHandler {
	return &QAHandler{
		service:        service,
		requestTimeout: requestTimeout,
	}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Ask answers a medical question.
func (h *QAHandler) Ask(c *gin.Context) {
	var req model.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    errors.ErrInvalidRequest.Code,
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	result, err := h.service.Ask(ctx, req.Question, req.Mode)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    errors.ErrQueryTimeout.Code,
				Message: "Query timeout: the request took too long to process. Please try again or simplify your question.",
			})
			return
		}
		errno := errors.FromError(err)
		c.JSON(errno.HTTPStatus(), ErrorResponse{
			Code:    errno.Code,
			Message: errno.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

// Stats returns knowledge base statistics.
func (h *QAHandler) Stats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		errno := errors.FromError(err)
		c.JSON(errno.HTTPStatus(), ErrorResponse{
			Code:    errno.Code,
			Message: errno.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}

// Healthz reports service liveness.
func (h *QAHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok"})
}
