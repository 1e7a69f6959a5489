package main

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pavitra93/edu-tenancy/shared/metrics"
	"github.com/pavitra93/edu-tenancy/shared/middleware"
	"github.com/pavitra93/edu-tenancy/shared/repository"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
	"github.com/pavitra93/edu-tenancy/shared/utils"
)

const serviceName = "tenant-service"

// App holds the tenant service dependencies shared by all handlers
type App struct {
	DB        *gorm.DB
	Orgs      *repository.OrganizationRepository
	Users     *repository.UserRepository
	Documents *repository.DocumentRepository
	Ledger    *tenancy.Ledger
	Audit     *tenancy.Recorder
}

// NewApp wires repositories, ledger and recorder over one database handle
func NewApp(db *gorm.DB, opts ...tenancy.RecorderOption) *App {
	orgs := repository.NewOrganizationRepository(db)
	return &App{
		DB:        db,
		Orgs:      orgs,
		Users:     repository.NewUserRepository(db),
		Documents: repository.NewDocumentRepository(db),
		Ledger:    tenancy.NewLedger(orgs),
		Audit:     tenancy.NewRecorder(repository.NewAuditLogRepository(db), opts...),
	}
}

// setupRouter registers every tenant service route
func setupRouter(app *App, auth middleware.Authenticator, resolver *tenancy.Resolver) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	httpMetrics := metrics.NewHTTPMetrics(serviceName)
	router.Use(httpMetrics.Middleware())

	authMiddleware := middleware.NewAuthMiddleware(serviceName, auth, tenancy.NewBuilder(app.Orgs), resolver)

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Tenant service is healthy", nil)
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	authed := router.Group("/")
	authed.Use(authMiddleware.RequireAuth())
	{
		authed.GET("/organization", handleGetCurrentOrganization(app))
		authed.GET("/users", handleListUsers(app))
		authed.GET("/documents", handleListDocuments(app))
	}

	orgs := router.Group("/organizations")
	orgs.Use(authMiddleware.RequireAuth(), authMiddleware.ResolveOrganization(app.Orgs, "id"))
	{
		superAdmin := authMiddleware.RequireSuperAdmin()
		access := authMiddleware.RequireOrganizationAccess("id")
		quota := authMiddleware.RequireWithinLimits(app.Ledger, "id")

		orgs.GET("", superAdmin, handleListOrganizations(app))
		orgs.POST("", superAdmin, handleCreateOrganization(app))

		orgs.GET("/:id", access, handleGetOrganization(app))
		orgs.PATCH("/:id", superAdmin, handleUpdateOrganization(app))
		orgs.DELETE("/:id", superAdmin, handlePurgeOrganization(app))
		orgs.PUT("/:id/settings", superAdmin, handleUpdateSettings(app))
		orgs.POST("/:id/deactivate", superAdmin, handleSetActive(app, false))
		orgs.POST("/:id/reactivate", superAdmin, handleSetActive(app, true))

		orgs.GET("/:id/usage", access, handleGetUsage(app))
		orgs.GET("/:id/limits", access, handleGetLimits(app))
		orgs.GET("/:id/activity", access,
			authMiddleware.RequireRole(tenancy.AdminRoles()...), handleGetActivity(app))
		orgs.POST("/:id/usage/reset", superAdmin, handleResetUsage(app))

		orgs.POST("/:id/documents", access, quota, handleCreateDocument(app))
		orgs.POST("/:id/questions", access, quota, handleConsumeQuestions(app))
	}

	return router
}
