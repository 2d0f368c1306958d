package services

import (
	"context"
	"errors"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrIdentityUnavailable = errors.New("identity provider unavailable")
)

// Identity is the verified subject of a session token.
type Identity struct {
	UID   string
	Email string
}

// Session is returned on successful sign-in.
type Session struct {
	Identity
	Token string
}

// IdentityGateway is the account store and token authority. Accounts are
// keyed by lower-cased email.
type IdentityGateway interface {
	// LookupByEmail returns ErrAccountNotFound when no account uses email.
	LookupByEmail(ctx context.Context, email string) (*Identity, error)
	// CreateAccount returns ErrAccountExists when the email is taken.
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)
	// VerifyCredentials signs in and issues a bearer token.
	VerifyCredentials(ctx context.Context, email, password string) (*Session, error)
	// VerifyToken returns ErrInvalidToken for any token it did not issue or
	// that has expired.
	VerifyToken(ctx context.Context, token string) (*Identity, error)
}
