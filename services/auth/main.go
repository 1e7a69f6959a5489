package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/config"
	"github.com/pavitra93/edu-tenancy/shared/identity"
	"github.com/pavitra93/edu-tenancy/shared/metrics"
	"github.com/pavitra93/edu-tenancy/shared/middleware"
	"github.com/pavitra93/edu-tenancy/shared/repository"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
	"github.com/pavitra93/edu-tenancy/shared/utils"
)

const serviceName = "auth-service"

// setupRouter registers the auth service routes
func setupRouter(verifier TokenVerifier, sessions SessionWriter, users UserStore, auth *middleware.AuthMiddleware, maxTTL time.Duration) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	httpMetrics := metrics.NewHTTPMetrics(serviceName)
	router.Use(httpMetrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Auth service is healthy", nil)
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/session", handleCreateSession(verifier, sessions, users, maxTTL))
		authRoutes.DELETE("/session", auth.RequireAuth(), handleLogout(sessions))
		authRoutes.GET("/me", auth.RequireAuth(), handleMe())
	}

	return router
}

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	// Initialize database
	db, err := config.ConnectDatabase(config.GetDatabaseConfig())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	tenancyCfg, err := config.GetTenancyConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid tenancy configuration")
	}
	cognitoCfg, err := config.GetCognitoConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid Cognito configuration")
	}
	redisCfg := config.GetRedisConfig()

	users := repository.NewUserRepository(db)
	stack, err := identity.NewStack(context.Background(), redisCfg, cognitoCfg, users)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize identity")
	}
	defer stack.Close()

	authMiddleware := middleware.NewAuthMiddleware(
		serviceName,
		stack.Gateway,
		tenancy.NewBuilder(repository.NewOrganizationRepository(db)),
		tenancy.NewResolver(tenancyCfg.RootDomains, tenancyCfg.CustomDomains),
	)

	router := setupRouter(stack.Gateway, stack.Sessions, users, authMiddleware, redisCfg.SessionTTL)

	// Start server
	port := config.GetEnv("AUTH_SERVICE_PORT", "8001")
	logrus.Infof("Auth service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.WithError(err).Fatal("Failed to start auth service")
	}
}
