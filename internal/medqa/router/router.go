// Package router provides MedQA service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kart-io/logger"

	"github.com/kart-io/medqa/internal/medqa/handler"
)

// RequestIDHeader carries the per-request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a request id when the client does not send one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Register registers the MedQA service routes.
func Register(engine *gin.Engine, qaHandler *handler.QAHandler) {
	logger.Info("Registering MedQA routes...")

	engine.Use(gin.Recovery(), RequestID())

	engine.GET("/healthz", qaHandler.Healthz)

	v1 := engine.Group("/v1")
	{
		v1.POST("/ask", qaHandler.Ask)
		v1.GET("/stats", qaHandler.Stats)
	}

	logger.Info("HTTP routes registered")
}
