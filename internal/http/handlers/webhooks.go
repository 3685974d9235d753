package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omnibridge/backend/internal/channel"
	"github.com/omnibridge/backend/internal/ratelimit"
	"github.com/omnibridge/backend/internal/tracker"
)

type WebhookResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// @Summary Receive a chat platform webhook
// @Description Verifies the platform signature, normalizes the message and runs one conversation turn.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param platform path string true "whatsapp, telegram or line"
// @Success 200 {object} WebhookResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /webhooks/{platform} [post]
func (h *Handler) Webhook(c *gin.Context) {
	adapter, err := h.Channels.Get(c.Param("platform"))
	if err != nil {
		writeError(c, http.StatusNotFound, "UNKNOWN_PLATFORM", "Unknown platform", c.Param("platform"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read body", err.Error())
		return
	}

	if v, ok := adapter.(channel.Verifier); ok {
		if err := v.Verify(c.Request.Header, body); err != nil {
			h.Logger.Warn().Str("platform", adapter.Platform()).Msg("webhook signature rejected")
			writeError(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid signature", nil)
			return
		}
	}

	msg, err := adapter.Parse(body)
	if errors.Is(err, channel.ErrUnsupportedMessageType) {
		c.JSON(http.StatusOK, WebhookResponse{Status: "ignored", Reason: "unsupported"})
		return
	}
	if err != nil {
		writeError(c, http.StatusBadRequest, "MALFORMED_PAYLOAD", "Malformed payload", err.Error())
		return
	}

	if h.Limiter != nil && !h.Limiter.Allow(ratelimit.Key(msg.Platform, msg.ExternalUserID)) {
		writeError(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many messages, slow down", nil)
		return
	}

	// The user already got an apology; a non-2xx here would make the
	// platform redeliver and apologize again.
	res, err := h.Bridge.Handle(c.Request.Context(), msg)
	if err != nil {
		c.JSON(http.StatusOK, WebhookResponse{Status: "failed", SessionID: res.SessionID})
		return
	}
	if res.Duplicate {
		c.JSON(http.StatusOK, WebhookResponse{Status: "ignored", SessionID: res.SessionID, Reason: "duplicate"})
		return
	}
	c.JSON(http.StatusOK, WebhookResponse{Status: "ok", SessionID: res.SessionID})
}

// @Summary Webhook subscription handshake
// @Tags webhooks
// @Produce plain
// @Param platform path string true "Platform"
// @Param hub.mode query string true "subscribe"
// @Param hub.verify_token query string true "Verify token"
// @Param hub.challenge query string true "Challenge"
// @Success 200 {string} string
// @Failure 403 {object} ErrorResponse
// @Router /webhooks/{platform} [get]
func (h *Handler) WebhookChallenge(c *gin.Context) {
	adapter, err := h.Channels.Get(c.Param("platform"))
	if err != nil {
		writeError(c, http.StatusNotFound, "UNKNOWN_PLATFORM", "Unknown platform", c.Param("platform"))
		return
	}
	cr, ok := adapter.(channel.ChallengeResponder)
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_SUPPORTED", "Platform has no subscription handshake", nil)
		return
	}
	answer, ok := cr.Challenge(c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"))
	if !ok {
		writeError(c, http.StatusForbidden, "VERIFICATION_FAILED", "Verify token mismatch", nil)
		return
	}
	c.String(http.StatusOK, answer)
}

// @Summary Receive a Jira comment webhook
// @Description Relays public comments on linked tickets back to the customer's chat.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} WebhookResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /webhooks/jira [post]
func (h *Handler) JiraWebhook(c *gin.Context) {
	if h.JiraWebhookSecret != "" {
		got := c.GetHeader("X-Atlassian-Webhook-Secret")
		if got == "" {
			got = c.GetHeader("X-Jira-Webhook-Secret")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.JiraWebhookSecret)) != 1 {
			writeError(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid Jira webhook secret", nil)
			return
		}
	}

	var ev tracker.CommentEvent
	if err := json.NewDecoder(io.LimitReader(c.Request.Body, maxWebhookBody)).Decode(&ev); err != nil {
		writeError(c, http.StatusBadRequest, "MALFORMED_PAYLOAD", "Invalid JSON payload", err.Error())
		return
	}

	relayed, err := h.Bridge.RelayComment(c.Request.Context(), ev)
	if err != nil {
		h.Logger.Error().Err(err).Str("ticket_key", ev.Issue.Key).Msg("comment relay failed")
		writeError(c, http.StatusInternalServerError, "RELAY_FAILED", "Comment relay failed", nil)
		return
	}
	if !relayed {
		c.JSON(http.StatusOK, WebhookResponse{Status: "ignored"})
		return
	}
	c.JSON(http.StatusOK, WebhookResponse{Status: "ok"})
}
