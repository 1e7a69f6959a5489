package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/edu-tenancy/shared/models"
	"github.com/pavitra93/edu-tenancy/shared/repository"
)

type fakeVerifier struct {
	identities map[string]Identity
	calls      int
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	f.calls++
	id, ok := f.identities[token]
	if !ok {
		return nil, errors.New("signature is invalid")
	}
	return &id, nil
}

type fakeDirectory struct {
	emails map[string]string
	err    error
}

func (f *fakeDirectory) LookupEmail(_ context.Context, subject string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.emails[subject], nil
}

type fakeSessions struct {
	sessions map[string]*Session
	revoked  map[string]bool
	err      error
}

func (f *fakeSessions) IsRevoked(_ context.Context, token string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[token], nil
}

func (f *fakeSessions) Get(_ context.Context, token string) (*Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.sessions[token]; ok {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

type fakeUsers struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func teacherFixture() (*fakeUsers, *models.User) {
	orgID := uuid.New()
	u := &models.User{ID: uuid.New(), Email: "t@acme.edu", Role: models.RoleTeacher, OrganizationID: &orgID}
	return &fakeUsers{users: map[string]*models.User{u.Email: u}}, u
}

func TestAuthenticate_VerifiedToken(t *testing.T) {
	users, teacher := teacherFixture()
	verifier := &fakeVerifier{identities: map[string]Identity{"good": {Subject: "s1", Email: teacher.Email}}}
	g := NewGateway(nil, verifier, nil, users)

	p, err := g.Authenticate(context.Background(), "good")

	require.NoError(t, err)
	assert.Equal(t, teacher.ID, p.UserID)
	assert.Equal(t, models.RoleTeacher, p.Role)
	assert.Equal(t, teacher.OrganizationID, p.OrganizationID)
}

func TestAuthenticate_SessionSkipsVerification(t *testing.T) {
	users, teacher := teacherFixture()
	verifier := &fakeVerifier{}
	sessions := &fakeSessions{sessions: map[string]*Session{
		"opaque": {Subject: "s1", Email: teacher.Email, ExpiresAt: time.Now().Add(time.Hour)},
	}}
	g := NewGateway(sessions, verifier, nil, users)

	p, err := g.Authenticate(context.Background(), "opaque")

	require.NoError(t, err)
	assert.Equal(t, teacher.ID, p.UserID)
	assert.Zero(t, verifier.calls)
}

func TestAuthenticate_RoleIsReadFromDatabaseEachTime(t *testing.T) {
	users, teacher := teacherFixture()
	sessions := &fakeSessions{sessions: map[string]*Session{
		"opaque": {Subject: "s1", Email: teacher.Email},
	}}
	g := NewGateway(sessions, &fakeVerifier{}, nil, users)

	p, err := g.Authenticate(context.Background(), "opaque")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, p.Role)

	teacher.Role = models.RoleAdmin

	p, err = g.Authenticate(context.Background(), "opaque")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, p.Role)
}

func TestAuthenticate_SessionStoreDownFallsBack(t *testing.T) {
	users, teacher := teacherFixture()
	verifier := &fakeVerifier{identities: map[string]Identity{"good": {Subject: "s1", Email: teacher.Email}}}
	g := NewGateway(&fakeSessions{err: errors.New("redis: connection refused")}, verifier, nil, users)

	p, err := g.Authenticate(context.Background(), "good")

	require.NoError(t, err)
	assert.Equal(t, teacher.ID, p.UserID)
	assert.Equal(t, 1, verifier.calls)
}

func TestAuthenticate_DirectoryFallbackForEmail(t *testing.T) {
	users, teacher := teacherFixture()
	verifier := &fakeVerifier{identities: map[string]Identity{"no-email": {Subject: "s1"}}}
	directory := &fakeDirectory{emails: map[string]string{"s1": teacher.Email}}
	g := NewGateway(nil, verifier, directory, users)

	p, err := g.Authenticate(context.Background(), "no-email")

	require.NoError(t, err)
	assert.Equal(t, teacher.ID, p.UserID)
}

func TestAuthenticate_Unauthenticated(t *testing.T) {
	users, _ := teacherFixture()
	verifier := &fakeVerifier{identities: map[string]Identity{
		"stranger": {Subject: "s2", Email: "stranger@elsewhere.io"},
		"no-email": {Subject: "s3"},
	}}
	g := NewGateway(nil, verifier, nil, users)

	for _, token := range []string{"", "forged", "stranger", "no-email"} {
		_, err := g.Authenticate(context.Background(), token)
		assert.ErrorIs(t, err, ErrUnauthenticated, token)
	}
}

func TestAuthenticate_InvalidStoredRole(t *testing.T) {
	users, teacher := teacherFixture()
	teacher.Role = "tenant_owner"
	verifier := &fakeVerifier{identities: map[string]Identity{"good": {Subject: "s1", Email: teacher.Email}}}
	g := NewGateway(nil, verifier, nil, users)

	_, err := g.Authenticate(context.Background(), "good")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_DatastoreFailure(t *testing.T) {
	verifier := &fakeVerifier{identities: map[string]Identity{"good": {Subject: "s1", Email: "t@acme.edu"}}}
	g := NewGateway(nil, verifier, nil, &fakeUsers{err: errors.New("db down")})

	_, err := g.Authenticate(context.Background(), "good")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_RevokedTokenIsRejected(t *testing.T) {
	users, teacher := teacherFixture()
	verifier := &fakeVerifier{identities: map[string]Identity{"good": {Subject: "s1", Email: teacher.Email}}}
	sessions := &fakeSessions{revoked: map[string]bool{"good": true}}
	g := NewGateway(sessions, verifier, nil, users)

	_, err := g.Authenticate(context.Background(), "good")

	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Zero(t, verifier.calls)
}

func TestAuthenticate_LogoutEndsAccessForStillValidToken(t *testing.T) {
	users, teacher := teacherFixture()
	store, _ := newTestSessionStore(t)
	ctx := context.Background()
	id := Identity{Subject: "s1", Email: teacher.Email, ExpiresAt: time.Now().Add(time.Hour)}
	verifier := &fakeVerifier{identities: map[string]Identity{"id-token": id}}
	g := NewGateway(store, verifier, nil, users)

	_, err := store.Create(ctx, "id-token", id, 30*time.Minute)
	require.NoError(t, err)
	p, err := g.Authenticate(ctx, "id-token")
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, p.UserID)

	require.NoError(t, store.Revoke(ctx, "id-token"))

	_, err = g.Authenticate(ctx, "id-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = g.VerifyToken(ctx, "id-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
