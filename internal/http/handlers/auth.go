package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omnibridge/backend/internal/service"
)

type VerifyResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// @Summary Verify an email link
// @Description Consumes a one-time verification token and authenticates the chat session it belongs to.
// @Tags auth
// @Produce json
// @Param token query string true "Verification token"
// @Success 200 {object} VerifyResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /auth/verify [get]
func (h *Handler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		writeError(c, http.StatusBadRequest, "INVALID_TOKEN", "Token is required", nil)
		return
	}

	sess, err := h.Bridge.VerifyToken(c.Request.Context(), token)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, VerifyResponse{
			Status:    "verified",
			SessionID: sess.ID,
			Message:   "Your email is verified. You can return to the chat.",
		})
	case errors.Is(err, service.ErrInvalidToken):
		writeError(c, http.StatusBadRequest, "INVALID_TOKEN", "This link is not valid", nil)
	case errors.Is(err, service.ErrExpiredToken):
		writeError(c, http.StatusGone, "EXPIRED_TOKEN", "This link has expired, send your email in the chat again", nil)
	case errors.Is(err, service.ErrUserNotFound):
		writeError(c, http.StatusUnauthorized, "USER_NOT_FOUND", "No directory user for this email", nil)
	case errors.Is(err, service.ErrUserInactive):
		writeError(c, http.StatusForbidden, "USER_INACTIVE", "This user is deactivated", nil)
	default:
		h.Logger.Error().Err(err).Msg("verification failed")
		writeError(c, http.StatusInternalServerError, "VERIFICATION_FAILED", "Verification failed", nil)
	}
}
