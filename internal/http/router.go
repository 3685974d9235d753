package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/omnibridge/backend/internal/channel"
	"github.com/omnibridge/backend/internal/config"
	"github.com/omnibridge/backend/internal/http/handlers"
	"github.com/omnibridge/backend/internal/http/middleware"

	_ "github.com/omnibridge/backend/docs"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Store     handlers.Store
	Bridge    handlers.Bridge
	Channels  *channel.Registry
	Limiter   handlers.Limiter
	Directory handlers.DirectorySyncer
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" || cfg.CORSAllowed == "" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = strings.Split(cfg.CORSAllowed, ",")
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:             deps.Store,
		Bridge:            deps.Bridge,
		Channels:          deps.Channels,
		Limiter:           deps.Limiter,
		Directory:         deps.Directory,
		Validator:         validator.New(),
		Logger:            logger,
		JiraWebhookSecret: cfg.JiraWebhookSecret,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/auth/verify", h.VerifyEmail)

	hooks := r.Group("/webhooks")
	{
		hooks.POST("/jira", h.JiraWebhook)
		hooks.GET("/:platform", h.WebhookChallenge)
		hooks.POST("/:platform", h.Webhook)
	}

	admin := r.Group("/api/admin")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.GET("/conversations", h.ConversationsList)
		admin.GET("/conversations/:id/messages", h.ConversationMessages)
		admin.POST("/conversations/:id/messages", h.AgentMessage)
		admin.GET("/conversations/:id/tickets", h.ConversationTickets)
		admin.POST("/conversations/:id/tickets", h.LinkTicket)
		admin.POST("/broadcast", h.Broadcast)
		admin.POST("/directory/sync", h.DirectorySync)
		admin.GET("/organizations", h.OrganizationsList)
		admin.GET("/stats", h.Stats)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
