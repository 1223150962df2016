package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/alpha-starter/backend/docs"
	"github.com/alpha-starter/backend/internal/model"
	"github.com/gin-gonic/gin"
)

// Ping godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} model.PingResponse
// @Router /ping [get]
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, model.PingResponse{Message: "pong"})
}

// Root godoc
// @Summary Service banner
// @Tags health
// @Produce json
// @Success 200 {object} model.RootResponse
// @Router / [get]
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, model.RootResponse{
		Status:  "ok",
		Message: "auth API server is running",
	})
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz godoc
// @Summary Readiness probe
// @Description Checks the credential store.
// @Tags health
// @Produce json
// @Success 200 {object} model.StatusResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /healthz [get]
func Healthz(store Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, model.StatusResponse{Status: "ok"})
	}
}

// OpenAPIDoc serves the swag document so clients can generate bindings
// without a separate docs host.
func OpenAPIDoc(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, gin.MIMEJSON, []byte(docs.SwaggerInfo.ReadDoc()))
}
