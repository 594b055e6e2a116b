package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"helpdesk/internal/infra/config"
	"helpdesk/internal/infra/obs"
)

type Handlers struct {
	Auth           AuthHTTP
	Webhook        WebhookHTTP
	Conversation   ConversationHTTP
	Page           PageHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	// Channel-facing endpoints stay outside /api: the platform calls them
	// directly and expects the exact paths registered in the app settings.
	if h.Webhook != nil {
		router.GET("/webhook", h.Webhook.Verify)
		router.POST("/webhook", h.Webhook.Receive)
	}

	api := router.Group("/api")
	if h.Auth != nil {
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.GET("/auth/verify", h.Auth.Verify)
		api.POST("/auth/logout", h.Auth.Logout)
	}
	if h.Conversation != nil {
		api.GET("/messages/conversations", h.Conversation.List)
		api.GET("/messages/conversations/:id/messages", h.Conversation.Messages)
		api.POST("/messages/conversations/:id/reply", h.Conversation.Reply)
	}
	if h.Page != nil {
		api.GET("/facebook/login-url", h.Page.LoginURL)
		api.POST("/facebook/connect", h.Page.Connect)
		api.GET("/facebook/pages", h.Page.List)
		api.DELETE("/facebook/disconnect/:pageId", h.Page.Disconnect)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
