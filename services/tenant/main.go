package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/config"
	"github.com/pavitra93/edu-tenancy/shared/events"
	"github.com/pavitra93/edu-tenancy/shared/identity"
	"github.com/pavitra93/edu-tenancy/shared/repository"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	ctx := context.Background()

	// Initialize database
	db, err := config.ConnectDatabase(config.GetDatabaseConfig())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	if err := config.Migrate(db); err != nil {
		logrus.WithError(err).Fatal("Failed to migrate database")
	}

	tenancyCfg, err := config.GetTenancyConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid tenancy configuration")
	}
	cognitoCfg, err := config.GetCognitoConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid Cognito configuration")
	}

	// Identity: Redis sessions, JWKS, Cognito directory
	stack, err := identity.NewStack(ctx, config.GetRedisConfig(), cognitoCfg, repository.NewUserRepository(db))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize identity")
	}
	defer stack.Close()

	// Audit stream
	opts := []tenancy.RecorderOption{
		tenancy.WithFailureReporter(func(ev tenancy.Event, err error) {
			logrus.WithFields(logrus.Fields{
				"action": ev.Action,
				"alert":  "audit_gap",
			}).WithError(err).Error("Audit entry lost")
		}),
	}
	kafkaCfg := config.GetKafkaConfig()
	if kafkaCfg.Broker != "" {
		publisher := events.NewAuditPublisher(kafkaCfg.Broker, kafkaCfg.AuditTopic, kafkaCfg.Workers, kafkaCfg.QueueSize)
		defer publisher.Close()
		opts = append(opts, tenancy.WithPublisher(publisher))
		logrus.WithFields(logrus.Fields{
			"broker": kafkaCfg.Broker,
			"topic":  kafkaCfg.AuditTopic,
		}).Info("Publishing audit events to Kafka")
	}

	app := NewApp(db, opts...)
	resolver := tenancy.NewResolver(tenancyCfg.RootDomains, tenancyCfg.CustomDomains)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(app, stack.Gateway, resolver)

	// Start server
	port := config.GetEnv("TENANT_SERVICE_PORT", "8002")
	logrus.Infof("Tenant service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.WithError(err).Fatal("Failed to start tenant service")
	}
}
