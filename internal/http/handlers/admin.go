package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omnibridge/backend/internal/db"
	"github.com/omnibridge/backend/internal/models"
	"github.com/omnibridge/backend/internal/service"
)

type AgentMessageRequest struct {
	Text string `json:"text" validate:"required,max=4096"`
}

type LinkTicketRequest struct {
	TicketKey string `json:"ticket_key" validate:"required,max=32"`
}

type BroadcastRequest struct {
	Platform string `json:"platform" validate:"omitempty,oneof=whatsapp telegram line"`
	Text     string `json:"text" validate:"required,max=4096"`
}

type BroadcastResponse struct {
	Sessions int `json:"sessions"`
}

type ConversationsResponse struct {
	Items []models.ConversationSummary `json:"items"`
}

type MessagesResponse struct {
	Session models.Session   `json:"session"`
	Items   []models.Message `json:"items"`
}

// @Summary List conversations
// @Tags admin
// @Produce json
// @Param platform query string false "Platform filter"
// @Param auth_status query string false "anonymous, pending_verification or authenticated"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} ConversationsResponse
// @Router /api/admin/conversations [get]
func (h *Handler) ConversationsList(c *gin.Context) {
	limit, offset := pageParams(c)
	items, err := h.Store.ListConversations(c.Request.Context(), c.Query("platform"), c.Query("auth_status"), limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list conversations", err.Error())
		return
	}
	if items == nil {
		items = []models.ConversationSummary{}
	}
	c.JSON(http.StatusOK, ConversationsResponse{Items: items})
}

// @Summary Conversation transcript
// @Description Returns messages oldest first and marks the conversation read.
// @Tags admin
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} MessagesResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/admin/conversations/{id}/messages [get]
func (h *Handler) ConversationMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := h.Store.SessionByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load conversation", err.Error())
		return
	}
	limit, offset := pageParams(c)
	items, err := h.Store.ListMessages(ctx, id, limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list messages", err.Error())
		return
	}
	if err := h.Store.MarkRead(ctx, id, time.Now().UTC()); err != nil {
		h.Logger.Warn().Err(err).Str("session_id", id).Msg("mark read failed")
	}
	if items == nil {
		items = []models.Message{}
	}
	c.JSON(http.StatusOK, MessagesResponse{Session: *sess, Items: items})
}

// @Summary Send an operator message
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body AgentMessageRequest true "Message"
// @Success 202 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/admin/conversations/{id}/messages [post]
func (h *Handler) AgentMessage(c *gin.Context) {
	var req AgentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	err := h.Bridge.SendAgentMessage(c.Request.Context(), c.Param("id"), req.Text)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	case errors.Is(err, db.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
	case errors.Is(err, service.ErrEmptyMessage):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Message is empty", nil)
	default:
		writeError(c, http.StatusInternalServerError, "SEND_FAILED", "Failed to send message", err.Error())
	}
}

// @Summary Tickets linked to a conversation
// @Tags admin
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} models.TicketLink
// @Router /api/admin/conversations/{id}/tickets [get]
func (h *Handler) ConversationTickets(c *gin.Context) {
	links, err := h.Store.ListTicketLinks(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list tickets", err.Error())
		return
	}
	if links == nil {
		links = []models.TicketLink{}
	}
	c.JSON(http.StatusOK, links)
}

// @Summary Link a tracker ticket to a conversation
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body LinkTicketRequest true "Ticket"
// @Success 200 {object} models.TicketLink
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/admin/conversations/{id}/tickets [post]
func (h *Handler) LinkTicket(c *gin.Context) {
	var req LinkTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	link, err := h.Bridge.LinkTicket(c.Request.Context(), c.Param("id"), req.TicketKey)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, link)
	case errors.Is(err, service.ErrInvalidTicketKey):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid ticket key", req.TicketKey)
	case errors.Is(err, db.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
	default:
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to link ticket", err.Error())
	}
}

// @Summary Broadcast to active conversations
// @Tags admin
// @Accept json
// @Produce json
// @Param body body BroadcastRequest true "Broadcast"
// @Success 200 {object} BroadcastResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/admin/broadcast [post]
func (h *Handler) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	n, err := h.Bridge.Broadcast(c.Request.Context(), req.Platform, req.Text)
	if errors.Is(err, service.ErrEmptyMessage) {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Message is empty", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "SEND_FAILED", "Broadcast failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, BroadcastResponse{Sessions: n})
}

// @Summary Run a directory sync now
// @Tags admin
// @Produce json
// @Success 200 {object} service.SyncResult
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/admin/directory/sync [post]
func (h *Handler) DirectorySync(c *gin.Context) {
	res, err := h.Directory.Run(c.Request.Context())
	if errors.Is(err, service.ErrSyncRunning) {
		writeError(c, http.StatusConflict, "SYNC_RUNNING", "A directory sync is already running", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusBadGateway, "SYNC_FAILED", "Directory sync failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary List organizations
// @Tags admin
// @Produce json
// @Param active query bool false "Only active organizations"
// @Success 200 {array} models.Organization
// @Router /api/admin/organizations [get]
func (h *Handler) OrganizationsList(c *gin.Context) {
	orgs, err := h.Store.ListOrganizations(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list organizations", err.Error())
		return
	}
	if orgs == nil {
		orgs = []models.Organization{}
	}
	c.JSON(http.StatusOK, orgs)
}

// @Summary Dashboard counters
// @Tags admin
// @Produce json
// @Success 200 {object} models.Stats
// @Router /api/admin/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	now := time.Now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stats, err := h.Store.Stats(c.Request.Context(), since)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load stats", err.Error())
		return
	}
	c.JSON(http.StatusOK, stats)
}
