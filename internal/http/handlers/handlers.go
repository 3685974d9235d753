package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/omnibridge/backend/internal/channel"
	"github.com/omnibridge/backend/internal/models"
	"github.com/omnibridge/backend/internal/service"
	"github.com/omnibridge/backend/internal/tracker"
)

// Bridge is the conversation core as seen by HTTP handlers.
type Bridge interface {
	Handle(ctx context.Context, msg models.NormalizedMessage) (service.Result, error)
	VerifyToken(ctx context.Context, token string) (*models.Session, error)
	RelayComment(ctx context.Context, ev tracker.CommentEvent) (bool, error)
	SendAgentMessage(ctx context.Context, sessionID, text string) error
	LinkTicket(ctx context.Context, sessionID, ticketKey string) (*models.TicketLink, error)
	Broadcast(ctx context.Context, platform, text string) (int, error)
}

// Store is the read side used by the health check and admin endpoints.
type Store interface {
	Ping(ctx context.Context) error
	SessionByID(ctx context.Context, id string) (*models.Session, error)
	ListConversations(ctx context.Context, platform, authStatus string, limit, offset int) ([]models.ConversationSummary, error)
	ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error)
	MarkRead(ctx context.Context, sessionID string, at time.Time) error
	ListTicketLinks(ctx context.Context, sessionID string) ([]models.TicketLink, error)
	ListOrganizations(ctx context.Context, activeOnly bool) ([]models.Organization, error)
	Stats(ctx context.Context, since time.Time) (models.Stats, error)
}

type DirectorySyncer interface {
	Run(ctx context.Context) (service.SyncResult, error)
}

type Limiter interface {
	Allow(key string) bool
}

type Handler struct {
	Store             Store
	Bridge            Bridge
	Channels          *channel.Registry
	Limiter           Limiter
	Directory         DirectorySyncer
	Validator         *validator.Validate
	Logger            zerolog.Logger
	JiraWebhookSecret string
}

const maxWebhookBody = 1 << 20

// @Summary Health check
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} ErrorResponse
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func pageParams(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
