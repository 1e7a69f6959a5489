package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/config"
	"github.com/pavitra93/edu-tenancy/shared/metrics"
	"github.com/pavitra93/edu-tenancy/shared/middleware"
	"github.com/pavitra93/edu-tenancy/shared/utils"
)

const serviceName = "api-gateway"

// setupRouter registers the gateway routes
func setupRouter(clients *ServiceClients) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	httpMetrics := metrics.NewHTTPMetrics(serviceName)
	router.Use(httpMetrics.Middleware())

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Tenant-Org-Id, X-Tenant-Org-Slug")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status, healthy := clients.GetServiceStatus(ctx)
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, utils.APIResponse{
				Success: false,
				Error:   "One or more services are unhealthy",
				Data:    status,
			})
			return
		}
		utils.OKResponse(c, "API Gateway is healthy", status)
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.Any("/api/auth/*path", clients.AuthService.Proxy("/api"))
	router.Any("/api/tenant/*path", clients.TenantService.Proxy("/api/tenant"))

	return router
}

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	clients := &ServiceClients{
		AuthService:   NewServiceClient("auth_service", config.GetEnv("AUTH_SERVICE_URL", "http://localhost:8001")),
		TenantService: NewServiceClient("tenant_service", config.GetEnv("TENANT_SERVICE_URL", "http://localhost:8002")),
	}

	router := setupRouter(clients)

	port := config.GetEnv("API_GATEWAY_PORT", "8080")
	logrus.Infof("API Gateway starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.WithError(err).Fatal("Failed to start API Gateway")
	}
}
