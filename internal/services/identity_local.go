package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/repository"
	"github.com/AnshRaj112/neighbourwatch-backend/pkg/utils"
)

// CredentialStore persists local accounts.
type CredentialStore interface {
	FindCredentialByEmail(ctx context.Context, email string) (*models.Credential, error)
	InsertCredential(ctx context.Context, c *models.Credential) error
}

// TokenClaims are the claims carried by locally issued tokens. The layout
// mirrors the hosted provider's ID tokens: uid in sub, plus email.
type TokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type LocalIdentityConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      func() time.Time
}

// LocalIdentity stores argon2id password hashes and issues HS256 tokens.
// It is used for development and tests in place of the hosted provider.
type LocalIdentity struct {
	store  CredentialStore
	cfg    LocalIdentityConfig
	parser *jwt.Parser
}

func NewLocalIdentity(store CredentialStore, cfg LocalIdentityConfig) *LocalIdentity {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &LocalIdentity{
		store: store,
		cfg:   cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(cfg.Now),
		),
	}
}

func (l *LocalIdentity) LookupByEmail(ctx context.Context, email string) (*Identity, error) {
	c, err := l.store.FindCredentialByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	return &Identity{UID: c.UID, Email: c.Email}, nil
}

func (l *LocalIdentity) CreateAccount(ctx context.Context, email, password string) (*Identity, error) {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	c := &models.Credential{UID: uuid.NewString(), Email: email, PasswordHash: hash}
	if err := l.store.InsertCredential(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	return &Identity{UID: c.UID, Email: c.Email}, nil
}

func (l *LocalIdentity) VerifyCredentials(ctx context.Context, email, password string) (*Session, error) {
	c, err := l.store.FindCredentialByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	ok, err := utils.VerifyPassword(password, c.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password for %s: %w", c.UID, err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, err := l.issue(c.UID, c.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Identity: Identity{UID: c.UID, Email: c.Email}, Token: token}, nil
}

func (l *LocalIdentity) VerifyToken(_ context.Context, raw string) (*Identity, error) {
	var claims TokenClaims
	_, err := l.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return l.cfg.Secret, nil
	})
	if err != nil || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{UID: claims.Subject, Email: claims.Email}, nil
}

func (l *LocalIdentity) issue(uid, email string) (string, error) {
	now := l.cfg.Now()
	claims := TokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    l.cfg.Issuer,
			Audience:  jwt.ClaimStrings{l.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.cfg.TTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
