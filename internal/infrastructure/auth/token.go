package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hilthontt/bookingsync/internal/apperr"
)

var ErrNoCredential = errors.New("no session credential")

// TokenSource yields the current session credential. Acquiring it is the
// host application's job; the realtime core only reads it before each dial.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken holds a credential the host can replace after a refresh.
type StaticToken struct {
	mu    sync.RWMutex
	token string
}

func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: token}
}

func (s *StaticToken) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *StaticToken) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

// CheckExpiry rejects a JWT whose exp claim is in the past. The signature is
// not verified; the server does that. Opaque, non-JWT tokens pass through.
func CheckExpiry(token string, now time.Time) error {
	claims := &jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !now.Before(exp.Time) {
		return apperr.Wrap(apperr.Unauthorized, fmt.Errorf("credential expired at %s", exp.Time.Format(time.RFC3339)), "")
	}
	return nil
}

// Validated wraps a source and fails fast with UNAUTHORIZED on missing or
// expired credentials.
func Validated(src TokenSource, now func() time.Time) TokenSource {
	if now == nil {
		now = time.Now
	}
	return TokenSourceFunc(func(ctx context.Context) (string, error) {
		token, err := src.Token(ctx)
		if err != nil {
			if errors.Is(err, ErrNoCredential) {
				return "", apperr.Wrap(apperr.Unauthorized, err, "")
			}
			return "", err
		}
		if err := CheckExpiry(token, now()); err != nil {
			return "", err
		}
		return token, nil
	})
}
