package server

import (
	"context"
	"time"

	"session-store-svc/src/internal/dependency"
	"session-store-svc/src/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(deps *dependency.Manager) {
	router := deps.Router
	router.Use(enableCORS)

	setupHealthEndpoint(deps)
	setupPublicRoutes(router, deps)
	setupAdminRoutes(router, deps)
}

func setupHealthEndpoint(deps *dependency.Manager) {
	router := deps.Router
	cfg := deps.Config

	router.GET("/health", func(c *gin.Context) {
		log.Debug("Health check endpoint requested")

		mongoStatus := "disabled"
		if deps.Mongodb != nil {
			mongoStatus = getStatus(isMongoConnected(c.Request.Context(), deps))
		}

		redisStatus := "disabled"
		if deps.Redis != nil {
			redisStatus = getStatus(isRedisConnected(c.Request.Context(), deps))
		}

		c.JSON(200, gin.H{
			"status":    "ok",
			"service":   cfg.App.Name,
			"version":   cfg.App.Version,
			"driver":    cfg.Session.Driver,
			"mongodb":   mongoStatus,
			"redis":     redisStatus,
			"rabbitmq":  getStatus(deps.RabbitMQ != nil),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

func setupPublicRoutes(router *gin.Engine, deps *dependency.Manager) {
	// API status endpoint
	router.GET("/api/v1/status", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"api_version":  "v1",
			"status":       "operational",
			"service":      deps.Config.App.Name,
			"session_name": deps.SessionStore.Name(),
		})
	})
}

func setupAdminRoutes(router *gin.Engine, deps *dependency.Manager) {
	authMiddleware := middleware.NewAuthMiddleware(deps.Config.Security.JwtKey)
	handler := deps.SessionHandler

	// Apply route name FIRST, then auth middlewares
	admin := router.Group("/api/v1/admin/sessions",
		authMiddleware.RequireAuth(),
		authMiddleware.RequireAdminRights())
	{
		admin.GET("/stats", setRouteName("getSessionStats"), handler.GetStats)
		admin.POST("/gc", setRouteName("collectSessions"), handler.CollectGarbage)
		admin.GET("/:id", setRouteName("readSession"), handler.ReadSession)
		admin.DELETE("/:id", setRouteName("destroySession"), handler.DestroySession)
		admin.DELETE("/:id/data", setRouteName("clearSession"), handler.ClearSession)
		admin.GET("/:id/keys/:key", setRouteName("readSessionKey"), handler.ReadKey)
		admin.PUT("/:id/keys/:key", setRouteName("writeSessionKey"), handler.WriteKey)
		admin.DELETE("/:id/keys/:key", setRouteName("deleteSessionKey"), handler.DeleteKey)
	}
}

func setRouteName(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("route_name", name)
		c.Next()
	}
}

func isMongoConnected(ctx context.Context, deps *dependency.Manager) bool {
	return deps.Mongodb.Client.Ping(ctx, nil) == nil
}

func isRedisConnected(ctx context.Context, deps *dependency.Manager) bool {
	return deps.Redis.Client.Ping(ctx).Err() == nil
}

func enableCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(204)
		return
	}

	c.Next()
}

func getStatus(b bool) string {
	if b {
		return "connected"
	}
	return "disconnected"
}
