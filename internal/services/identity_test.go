package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/repository"
)

type memoryCredentials struct {
	mu      sync.Mutex
	byEmail map[string]models.Credential
	nextErr error
}

func newMemoryCredentials() *memoryCredentials {
	return &memoryCredentials{byEmail: make(map[string]models.Credential)}
}

func (m *memoryCredentials) FindCredentialByEmail(_ context.Context, email string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextErr != nil {
		return nil, m.nextErr
	}
	c, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m *memoryCredentials) InsertCredential(_ context.Context, c *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextErr != nil {
		return m.nextErr
	}
	if _, ok := m.byEmail[c.Email]; ok {
		return repository.ErrDuplicate
	}
	m.byEmail[c.Email] = *c
	return nil
}

func newTestIdentity(now func() time.Time) (*LocalIdentity, *memoryCredentials) {
	store := newMemoryCredentials()
	return NewLocalIdentity(store, LocalIdentityConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "https://securetoken.google.com/test-project",
		Audience: "test-project",
		TTL:      time.Hour,
		Now:      now,
	}), store
}

func TestLocalIdentity_CreateAndSignIn(t *testing.T) {
	ctx := context.Background()
	id, _ := newTestIdentity(nil)

	created, err := id.CreateAccount(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)

	found, err := id.LookupByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.UID, found.UID)

	session, err := id.VerifyCredentials(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, created.UID, session.UID)

	verified, err := id.VerifyToken(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, created.UID, verified.UID)
	assert.Equal(t, "ann@example.com", verified.Email)
}

func TestLocalIdentity_Errors(t *testing.T) {
	ctx := context.Background()
	id, store := newTestIdentity(nil)

	_, err := id.LookupByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = id.CreateAccount(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	_, err = id.CreateAccount(ctx, "ann@example.com", "secret2")
	assert.ErrorIs(t, err, ErrAccountExists)

	_, err = id.VerifyCredentials(ctx, "ann@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = id.VerifyCredentials(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	store.nextErr = errors.New("connection reset")
	_, err = id.LookupByEmail(ctx, "ann@example.com")
	assert.ErrorIs(t, err, ErrIdentityUnavailable)
}

func TestLocalIdentity_RejectsExpiredAndForeignTokens(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	id, _ := newTestIdentity(clock)

	_, err := id.CreateAccount(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	session, err := id.VerifyCredentials(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = id.VerifyToken(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewLocalIdentity(newMemoryCredentials(), LocalIdentityConfig{
		Secret: []byte("other-secret"), Issuer: "x", Audience: "y",
	})
	_, err = other.CreateAccount(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)
	foreign, err := other.VerifyCredentials(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)

	_, err = id.VerifyToken(ctx, foreign.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = id.VerifyToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFirebaseIdentity_VerifyCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "web-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"localId":"uid-1","email":"Ann@Example.com","idToken":"id-token"}`))
		case "/bad-password":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"UNAVAILABLE"}}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	session, err := NewFirebaseIdentity(nil, "web-key").WithEndpoint(srv.URL+"/ok").
		VerifyCredentials(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", session.UID)
	assert.Equal(t, "ann@example.com", session.Email)
	assert.Equal(t, "id-token", session.Token)

	_, err = NewFirebaseIdentity(nil, "web-key").WithEndpoint(srv.URL+"/bad-password").
		VerifyCredentials(ctx, "ann@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = NewFirebaseIdentity(nil, "web-key").WithEndpoint(srv.URL+"/down").
		VerifyCredentials(ctx, "ann@example.com", "pw")
	assert.ErrorIs(t, err, ErrIdentityUnavailable)
}

func TestIsCredentialError(t *testing.T) {
	assert.True(t, isCredentialError("EMAIL_NOT_FOUND"))
	assert.True(t, isCredentialError("INVALID_PASSWORD : The password is invalid."))
	assert.False(t, isCredentialError("TOO_MANY_ATTEMPTS_TRY_LATER"))
}
