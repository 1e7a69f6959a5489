package main

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/identity"
	"github.com/pavitra93/edu-tenancy/shared/middleware"
	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/repository"
	"github.com/pavitra93/edu-tenancy/shared/utils"
)

// TokenVerifier verifies an ID token and resolves its email
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*identity.Identity, error)
}

// SessionWriter creates and revokes token sessions
type SessionWriter interface {
	Create(ctx context.Context, token string, id identity.Identity, ttl time.Duration) (*identity.Session, error)
	Revoke(ctx context.Context, token string) error
}

// UserStore is the user lookup the auth service needs
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SessionRequest carries the ID token to exchange
type SessionRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// sessionTTL bounds the session by both the token expiry and the configured cap
func sessionTTL(expiresAt time.Time, maxTTL time.Duration, now time.Time) time.Duration {
	if expiresAt.IsZero() {
		return maxTTL
	}
	ttl := expiresAt.Sub(now)
	if ttl > maxTTL {
		return maxTTL
	}
	return ttl
}

// handleCreateSession exchanges a verified ID token for a Redis session
func handleCreateSession(verifier TokenVerifier, sessions SessionWriter, users UserStore, maxTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		ctx := c.Request.Context()
		id, err := verifier.VerifyToken(ctx, req.IDToken)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				utils.UnauthorizedResponse(c, "Invalid token")
				return
			}
			if errors.Is(err, utils.ErrCircuitOpen) {
				utils.ServiceUnavailableResponse(c, "Authentication service temporarily unavailable")
				return
			}
			middleware.Logger(c).WithError(err).Error("Failed to verify token")
			utils.InternalServerErrorResponse(c, "Failed to verify token")
			return
		}

		user, err := users.FindByEmail(ctx, id.Email)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				utils.UnauthorizedResponse(c, "User is not registered")
				return
			}
			middleware.Logger(c).WithError(err).Error("Failed to load user")
			utils.InternalServerErrorResponse(c, "Failed to load user")
			return
		}

		now := time.Now()
		ttl := sessionTTL(id.ExpiresAt, maxTTL, now)
		if ttl <= 0 {
			utils.UnauthorizedResponse(c, "Token expired")
			return
		}

		session, err := sessions.Create(ctx, req.IDToken, *id, ttl)
		if err != nil {
			middleware.Logger(c).WithError(err).Error("Failed to create session")
			utils.InternalServerErrorResponse(c, "Failed to create session")
			return
		}

		if err := users.TouchLastLogin(ctx, user.ID, now); err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": user.ID,
				"error":   err,
			}).Warn("Failed to record last login")
		}

		utils.CreatedResponse(c, "Session created", gin.H{
			"session_id": session.SessionID,
			"expires_at": session.ExpiresAt,
			"token_type": "Bearer",
		})
	}
}

// handleLogout revokes the session of the presented token
func handleLogout(sessions SessionWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sessions.Revoke(c.Request.Context(), middleware.GetToken(c)); err != nil {
			middleware.Logger(c).WithError(err).Error("Failed to revoke session")
			utils.InternalServerErrorResponse(c, "Failed to revoke session")
			return
		}

		utils.OKResponse(c, "Logout successful", nil)
	}
}

// handleMe returns the principal and organization context of the request
func handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, _ := middleware.GetPrincipal(c)
		oc, _ := middleware.GetOrganizationContext(c)

		utils.OKResponse(c, "Authenticated", gin.H{
			"user":         principal,
			"organization": oc,
		})
	}
}
