// Package api is the HTTP surface of the chat, served by gin.
package api

import (
	"bourracho/auth"
	"bourracho/observability"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type statsSource interface {
	Latest() observability.Stats
}

// NewRouter mounts the REST routes under /api, the live endpoint under
// /ws/chat/:id and the monitoring endpoint. live may be nil.
func NewRouter(log *slog.Logger, tokenizer auth.Tokenizer, handler *Handler, live gin.HandlerFunc, monitor statsSource) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	public := router.Group("/api")
	public.POST("/register", handler.Register)
	public.POST("/login", handler.Login)

	api := router.Group("/api", auth.Middleware(tokenizer))
	api.GET("/users", handler.Users)
	api.POST("/chat", handler.CreateConversation)
	api.GET("/chat", handler.ListConversations)
	api.GET("/chat/:id", handler.GetConversation)
	api.PATCH("/chat/:id", handler.UpdateConversation)
	api.DELETE("/chat/:id", handler.DeleteConversation)
	api.POST("/chat/:id/join", handler.JoinConversation)
	api.DELETE("/chat/:id/leave", handler.LeaveConversation)
	api.PATCH("/chat/:id/members/me", handler.UpdateMember)
	api.GET("/chat/:id/messages", handler.ListMessages)
	api.POST("/chat/:id/messages", handler.PostMessage)
	api.PATCH("/chat/:id/messages", handler.UpdateMessage)
	api.GET("/chat/:id/search", handler.SearchMessages)
	api.GET("/media/:mediaId", handler.Media)

	if live != nil {
		router.GET("/ws/chat/:id", auth.Middleware(tokenizer), live)
	}
	if monitor != nil {
		router.GET("/monitoring/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, monitor.Latest())
		})
	}
	return router
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
