package api

import (
	"context"

	"fileupload/internal/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and
// middleware. ctx bounds the rate limiter's background cleanup.
func SetupRouter(ctx context.Context, handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on mutating endpoints only
	limiter := NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	// Upload (rate-limited)
	e.POST("/api/upload", handler.HandleUpload, limiter.Middleware())

	// Records
	e.GET("/api/uploads/:id", handler.HandleInfo)
	e.GET("/api/groups/:id", handler.HandleGroup)
	e.DELETE("/api/uploads/:id/:token", handler.HandleDelete, limiter.Middleware())

	// Stored files
	e.DELETE("/api/files/:name", handler.HandleRemoveFile, limiter.Middleware())

	return e
}
