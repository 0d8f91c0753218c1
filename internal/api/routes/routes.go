package routes

import (
	"github.com/clipwise/clipwise/internal/api/handlers"
	"github.com/clipwise/clipwise/internal/api/middleware"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Session *handlers.SessionHandler
	Trigger *handlers.TriggerHandler
	Queue   *handlers.QueueHandler
	Content *handlers.ContentHandler
	WS      *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/session/start", d.Session.Start)
	auth.GET("/session/:session_id", d.Session.Get)
	auth.POST("/session/:session_id/end", d.Session.End)
	auth.PUT("/session/:session_id/recording", d.Session.SetRecording)
	auth.GET("/session/:session_id/transcript", d.Session.Transcript)

	auth.GET("/session/:session_id/queue", d.Queue.List)
	auth.POST("/session/:session_id/marker", d.Queue.Marker)
	auth.GET("/queue/:item_id", d.Queue.Get)
	auth.POST("/queue/:item_id/process", d.Queue.Process)

	auth.GET("/session/:session_id/clips", d.Content.ListClips)
	auth.GET("/clips/:id", d.Content.GetClip)
	auth.GET("/session/:session_id/drafts", d.Content.ListDrafts)
	auth.GET("/drafts/:id", d.Content.GetDraft)
	auth.GET("/drafts/:id/related", d.Content.RelatedDrafts)

	// Trigger configuration is operator-only.
	operator := auth.Group("/triggers")
	operator.Use(middleware.RequireRole("operator", "admin"))
	operator.POST("", d.Trigger.Create)
	operator.GET("", d.Trigger.List)
	operator.GET("/:id", d.Trigger.Get)
	operator.PUT("/:id", d.Trigger.Update)
	operator.PUT("/:id/enabled", d.Trigger.SetEnabled)

	// WebSocket
	auth.GET("/ws/session/:session_id", d.WS.SessionWS)
}
