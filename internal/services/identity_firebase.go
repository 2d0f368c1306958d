package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/tidwall/gjson"
)

const signInEndpoint = "https://identitytoolkit.googleapis.com/v1/accounts:signInWithPassword"

// FirebaseAuthClient is the subset of *auth.Client the gateway uses.
type FirebaseAuthClient interface {
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseIdentity delegates accounts and token verification to Firebase
// Auth. The Admin SDK cannot check passwords, so sign-in goes through the
// Identity Toolkit REST endpoint with the project's web API key.
type FirebaseIdentity struct {
	client     FirebaseAuthClient
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewFirebaseIdentity(client FirebaseAuthClient, apiKey string) *FirebaseIdentity {
	return &FirebaseIdentity{
		client:     client,
		apiKey:     apiKey,
		endpoint:   signInEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithEndpoint overrides the sign-in URL, e.g. for the auth emulator.
func (f *FirebaseIdentity) WithEndpoint(endpoint string) *FirebaseIdentity {
	f.endpoint = endpoint
	return f
}

func (f *FirebaseIdentity) LookupByEmail(ctx context.Context, email string) (*Identity, error) {
	u, err := f.client.GetUserByEmail(ctx, email)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	return &Identity{UID: u.UID, Email: strings.ToLower(u.Email)}, nil
}

func (f *FirebaseIdentity) CreateAccount(ctx context.Context, email, password string) (*Identity, error) {
	params := (&auth.UserToCreate{}).Email(email).Password(password)
	u, err := f.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	return &Identity{UID: u.UID, Email: strings.ToLower(u.Email)}, nil
}

func (f *FirebaseIdentity) VerifyCredentials(ctx context.Context, email, password string) (*Session, error) {
	body, err := json.Marshal(map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint+"?key="+f.apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		code := gjson.GetBytes(raw, "error.message").String()
		if isCredentialError(code) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: sign-in returned %d %s", ErrIdentityUnavailable, resp.StatusCode, code)
	}

	result := gjson.GetManyBytes(raw, "localId", "email", "idToken")
	if result[0].String() == "" || result[2].String() == "" {
		return nil, fmt.Errorf("%w: sign-in response missing token", ErrIdentityUnavailable)
	}
	return &Session{
		Identity: Identity{UID: result[0].String(), Email: strings.ToLower(result[1].String())},
		Token:    result[2].String(),
	}, nil
}

func (f *FirebaseIdentity) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	t, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	email, _ := t.Claims["email"].(string)
	return &Identity{UID: t.UID, Email: strings.ToLower(email)}, nil
}

// isCredentialError reports whether an Identity Toolkit error code means the
// caller supplied a wrong email or password. Codes may carry a suffix such
// as "INVALID_PASSWORD : ...".
func isCredentialError(code string) bool {
	code, _, _ = strings.Cut(code, " ")
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL", "USER_DISABLED", "MISSING_PASSWORD":
		return true
	}
	return false
}
