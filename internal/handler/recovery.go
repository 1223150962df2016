package handler

import (
	"net/http"

	"github.com/alpha-starter/backend/internal/logging"
	"github.com/alpha-starter/backend/internal/model"
	"github.com/alpha-starter/backend/internal/service"
	"github.com/gin-gonic/gin"
)

type RecoveryHandler struct {
	svc    *service.RecoveryService
	logger logging.Logger
}

func NewRecoveryHandler(svc *service.RecoveryService, logger logging.Logger) *RecoveryHandler {
	return &RecoveryHandler{svc: svc, logger: logger}
}

// RequestPasswordReset godoc
// @Summary Request a password reset
// @Description Always 202 so the response never reveals whether the email is registered.
// @Tags recovery
// @Accept json
// @Produce json
// @Param request body model.RecoveryRequest true "Account email"
// @Success 202 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/auth/password-reset/request [post]
func (h *RecoveryHandler) RequestPasswordReset(c *gin.Context) {
	var req model.RecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.logger.Error(c.Request.Context(), "password reset request failed", "error", err)
	}
	c.JSON(http.StatusAccepted, model.StatusResponse{Status: "accepted"})
}

// ConfirmPasswordReset godoc
// @Summary Confirm a password reset
// @Tags recovery
// @Accept json
// @Produce json
// @Param request body model.ResetConfirmRequest true "Reset token and new password"
// @Success 204
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/password-reset/confirm [post]
func (h *RecoveryHandler) ConfirmPasswordReset(c *gin.Context) {
	var req model.ResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.svc.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.writeRecoveryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RequestEmailVerification godoc
// @Summary Request an email verification link
// @Description Always 202 so the response never reveals whether the email is registered.
// @Tags recovery
// @Accept json
// @Produce json
// @Param request body model.RecoveryRequest true "Account email"
// @Success 202 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/auth/verify-email/request [post]
func (h *RecoveryHandler) RequestEmailVerification(c *gin.Context) {
	var req model.RecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.svc.RequestEmailVerification(c.Request.Context(), req.Email); err != nil {
		h.logger.Error(c.Request.Context(), "verification request failed", "error", err)
	}
	c.JSON(http.StatusAccepted, model.StatusResponse{Status: "accepted"})
}

// ConfirmEmailVerification godoc
// @Summary Confirm an email address
// @Tags recovery
// @Accept json
// @Produce json
// @Param request body model.VerifyConfirmRequest true "Verification token"
// @Success 204
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/verify-email/confirm [post]
func (h *RecoveryHandler) ConfirmEmailVerification(c *gin.Context) {
	var req model.VerifyConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.svc.ConfirmEmailVerification(c.Request.Context(), req.Token); err != nil {
		h.writeRecoveryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
