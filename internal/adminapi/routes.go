package adminapi

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"dnsflatd/internal/adminapi/handlers"
	"dnsflatd/internal/adminapi/middleware"
	"dnsflatd/internal/config"

	_ "dnsflatd/internal/adminapi/docs"
)

// RegisterRoutes wires the admin API's endpoints onto r.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.AdminConfig) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)
	if cfg != nil && cfg.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.APIKey))
	}

	api.GET("/stats", h.Stats)
	api.GET("/stats/history", h.History)
}
