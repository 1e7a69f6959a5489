package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown, revoked or expired sessions
var ErrSessionNotFound = errors.New("session not found")

const (
	sessionKeyPrefix = "token:session:"
	revokedKeyPrefix = "token:revoked:"

	// Cognito ID tokens are valid for at most one day
	maxRevocationTTL = 24 * time.Hour
)

// Session binds a bearer token to a verified identity. Role and organization
// are deliberately not stored; they are re-read on every request.
type Session struct {
	SessionID  string    `json:"session_id"`
	Subject    string    `json:"subject"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`

	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`
}

// IsExpired reports whether the session is past its expiry
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionStore keeps token sessions in Redis under the token's SHA-256 hash
type SessionStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewSessionStore creates a session store over an existing client
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

func tokenHash(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func sessionKey(token string) string {
	return sessionKeyPrefix + tokenHash(token)
}

func revokedKey(token string) string {
	return revokedKeyPrefix + tokenHash(token)
}

// Create stores a session for token that lives for ttl
func (s *SessionStore) Create(ctx context.Context, token string, id Identity, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}

	now := s.now()
	session := &Session{
		SessionID:  uuid.New().String(),
		Subject:    id.Subject,
		Email:      id.Email,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(ttl),

		TokenExpiresAt: id.ExpiresAt,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(token), data, ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return session, nil
}

// Get returns the live session for token
func (s *SessionStore) Get(ctx context.Context, token string) (*Session, error) {
	key := sessionKey(token)

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if session.IsExpired(s.now()) {
		s.client.Del(ctx, key)
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Revoke deletes the session for token and marks the token itself revoked
// until it expires, so it cannot be verified again. Revoking an unknown token
// is not an error.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	ttl := maxRevocationTTL
	if data, err := s.client.Get(ctx, sessionKey(token)).Bytes(); err == nil {
		var session Session
		if json.Unmarshal(data, &session) == nil && !session.TokenExpiresAt.IsZero() {
			if remaining := session.TokenExpiresAt.Sub(s.now()); remaining < ttl {
				ttl = remaining
			}
		}
	} else if err != redis.Nil {
		return fmt.Errorf("failed to read session from Redis: %w", err)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if ttl > 0 {
			pipe.Set(ctx, revokedKey(token), s.now().UTC().Format(time.RFC3339), ttl)
		}
		pipe.Del(ctx, sessionKey(token))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether token was revoked and has not yet expired
func (s *SessionStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}
