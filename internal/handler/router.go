package handler

import (
	"fmt"

	"github.com/alpha-starter/backend/internal/logging"
	"github.com/alpha-starter/backend/internal/service"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	Auth           *service.AuthService
	Recovery       *service.RecoveryService
	Guard          *service.Guard
	Store          Pinger
	Logger         logging.Logger
	CORSOrigins    []string
	TrustedProxies []string
}

func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	router := gin.New()
	// nil disables proxy headers, so ClientIP is the socket peer.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	router.Use(gin.Recovery(), RequestLogger(cfg.Logger), CORSMiddleware(cfg.CORSOrigins, true))

	router.GET("/", Root)
	router.GET("/ping", Ping)
	router.GET("/healthz", Healthz(cfg.Store))
	router.GET("/openapi.json", OpenAPIDoc)

	authHandler := NewAuthHandler(cfg.Auth, cfg.Logger)
	recoveryHandler := NewRecoveryHandler(cfg.Recovery, cfg.Logger)
	requireAuth := AuthMiddleware(cfg.Guard)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.GET("/config", authHandler.Config)
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", requireAuth, authHandler.Me)
		auth.POST("/password", requireAuth, authHandler.ChangePassword)

		auth.POST("/password-reset/request", recoveryHandler.RequestPasswordReset)
		auth.POST("/password-reset/confirm", recoveryHandler.ConfirmPasswordReset)
		auth.POST("/verify-email/request", recoveryHandler.RequestEmailVerification)
		auth.POST("/verify-email/confirm", recoveryHandler.ConfirmEmailVerification)

		v1.POST("/account/delete", requireAuth, authHandler.DeleteAccount)
	}

	return router, nil
}
