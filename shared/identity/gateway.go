package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/repository"
	"github.com/pavitra93/edu-tenancy/shared/tenancy"
)

// ErrUnauthenticated means no principal could be established for the request
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is who a token belongs to, before any role lookup
type Identity struct {
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenVerifier verifies a bearer token
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// EmailDirectory fills in an email a token did not carry
type EmailDirectory interface {
	LookupEmail(ctx context.Context, subject string) (string, error)
}

// SessionLookup finds an existing token session and revoked tokens
type SessionLookup interface {
	Get(ctx context.Context, token string) (*Session, error)
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// UserFinder loads the user row behind an identity
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Gateway maps a bearer token to a principal
type Gateway struct {
	sessions  SessionLookup
	verifier  TokenVerifier
	directory EmailDirectory
	users     UserFinder
}

// NewGateway creates a gateway. sessions and directory may be nil.
func NewGateway(sessions SessionLookup, verifier TokenVerifier, directory EmailDirectory, users UserFinder) *Gateway {
	return &Gateway{
		sessions:  sessions,
		verifier:  verifier,
		directory: directory,
		users:     users,
	}
}

// VerifyToken verifies a token and resolves its email without creating or
// reading a session. Revoked tokens are rejected.
func (g *Gateway) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	if g.sessions != nil {
		revoked, err := g.sessions.IsRevoked(ctx, token)
		if err != nil {
			logrus.WithError(err).Warn("Revocation check failed, continuing with token verification")
		}
		if revoked {
			return nil, ErrUnauthenticated
		}
	}

	id, err := g.verifier.Verify(ctx, token)
	if err != nil {
		logrus.WithError(err).Debug("Token verification failed")
		return nil, ErrUnauthenticated
	}

	if id.Email == "" {
		if g.directory == nil {
			return nil, ErrUnauthenticated
		}
		email, err := g.directory.LookupEmail(ctx, id.Subject)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve identity email: %w", err)
		}
		id.Email = email
	}
	return id, nil
}

// Authenticate returns the principal for token. The user row is read on every
// call so role and organization changes apply immediately.
func (g *Gateway) Authenticate(ctx context.Context, token string) (*tenancy.Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	id, err := g.identify(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := g.users.FindByEmail(ctx, id.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	role, err := models.ParseUserRole(string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user.ID, err)
	}

	p := tenancy.PrincipalFromUser(user)
	p.Role = role
	return p, nil
}

func (g *Gateway) identify(ctx context.Context, token string) (*Identity, error) {
	if g.sessions != nil {
		session, err := g.sessions.Get(ctx, token)
		switch {
		case err == nil:
			return &Identity{Subject: session.Subject, Email: session.Email, ExpiresAt: session.ExpiresAt}, nil
		case !errors.Is(err, ErrSessionNotFound):
			logrus.WithError(err).Warn("Session lookup failed, falling back to token verification")
		}
	}
	return g.VerifyToken(ctx, token)
}
