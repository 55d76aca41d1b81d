package router

import (
	"github.com/gin-gonic/gin"

	"feasibility.app/etl/internal/http/handler"
	"feasibility.app/etl/internal/http/middleware"
	"feasibility.app/etl/internal/service"
)

type RouterConfig struct {
	AdminAPIKey string
}

func SetupRoutes(router *gin.Engine, runService service.RunService, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireAdminAPIKey(cfg.AdminAPIKey))
	{
		runHandler := handler.NewRunHandler(runService)
		RunRouter(v1.Group("/runs"), runHandler)
	}
}
