package router

import (
	"github.com/gin-gonic/gin"

	"github.com/RigelNana/backdrop/gateway/docs"
	"github.com/RigelNana/backdrop/gateway/handler"
	"github.com/RigelNana/backdrop/gateway/middleware"
	ginmetrics "github.com/RigelNana/backdrop/pkg/metrics/gin"
)

type Handlers struct {
	Compose *handler.ComposeHandler
	Session *handler.SessionHandler
	Run     *handler.RunHandler
}

func Setup(h Handlers, maxBodyBytes int64) *gin.Engine {
	r := gin.Default()
	r.Use(ginmetrics.PrometheusMiddleware("gateway"))
	docs.RegisterRoutes(r)

	api := r.Group("/api")
	api.Use(middleware.Credential(), middleware.BodyLimit(maxBodyBytes))
	{
		api.GET("/health", h.Compose.Health)
		// 其他方法由 handler 返回 405
		api.Any("/generate", h.Compose.Generate)
	}

	sessions := api.Group("/sessions")
	{
		sessions.POST("", h.Session.Create)
		sessions.GET("/:id", h.Session.Get)
		sessions.DELETE("/:id", h.Session.Delete)
		sessions.POST("/:id/photos", h.Session.AddPhotos)
		sessions.POST("/:id/inspirations", h.Session.AddInspirations)
		sessions.DELETE("/:id/photos/:asset_id", h.Session.RemovePhoto)
		sessions.DELETE("/:id/inspirations/:asset_id", h.Session.RemoveInspiration)
		sessions.POST("/:id/select", h.Session.Select)
		sessions.POST("/:id/pairs", h.Session.AddPair)
		sessions.DELETE("/:id/pairs/:index", h.Session.RemovePair)
		sessions.GET("/:id/runs", h.Session.ListRuns)
		sessions.POST("/:id/runs", h.Session.StartRun)
	}

	runs := api.Group("/runs")
	{
		runs.GET("/:id", h.Run.Get)
		runs.DELETE("/:id", h.Run.Cancel)
		runs.GET("/:id/events", h.Run.Events)
		runs.POST("/:id/pairs/:index/retry", h.Run.Retry)
	}
	return r
}
