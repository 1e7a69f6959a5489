package identity

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/edu-tenancy/shared/config"
	"github.com/pavitra93/edu-tenancy/shared/utils"
)

// Stack is the connected identity layer of a service
type Stack struct {
	Redis    *redis.Client
	Sessions *SessionStore
	Verifier *JWKSVerifier
	Gateway  *Gateway
}

// Close releases the Redis connection
func (s *Stack) Close() error {
	return s.Redis.Close()
}

// NewStack connects Redis, the JWKS verifier and the Cognito directory and
// composes them into a Gateway over users
func NewStack(ctx context.Context, redisCfg *config.RedisConfig, cognitoCfg *config.CognitoConfig, users UserFinder) (*Stack, error) {
	client, err := NewRedisClient(ctx, redisCfg.Addr, redisCfg.Password, redisCfg.DB)
	if err != nil {
		return nil, err
	}
	sessions := NewSessionStore(client)

	verifier := NewJWKSVerifier(cognitoCfg.JWKSURL(), cognitoCfg.Issuer(), cognitoCfg.ClientID)

	var directory EmailDirectory
	cognito, err := NewCognitoClient(cognitoCfg.Region)
	if err != nil {
		logrus.WithError(err).Warn("Cognito directory unavailable, tokens without email will be rejected")
	} else {
		breaker := utils.NewCircuitBreaker("cognito-admin-get-user", 5, 30*time.Second)
		directory = NewCognitoDirectory(cognito, cognitoCfg.UserPoolID, breaker)
	}

	return &Stack{
		Redis:    client,
		Sessions: sessions,
		Verifier: verifier,
		Gateway:  NewGateway(sessions, verifier, directory, users),
	}, nil
}
