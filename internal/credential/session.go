// Package credential owns the album API credentials: the access token used on
// every album call and the refresh token that renews it.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

var ErrNoRefreshToken = errors.New("no refresh token")

// Session holds the current tokens. It is owned by the cycle controller and
// only changes through Refresh.
type Session struct {
	issuer       Issuer
	accessToken  string
	refreshToken string
	expiry       time.Time
	now          func() time.Time
	logger       *slog.Logger
}

func NewSession(issuer Issuer, token *oauth2.Token, logger *slog.Logger) *Session {
	s := &Session{
		issuer: issuer,
		now:    time.Now,
		logger: logger.With("component", "credential"),
	}
	if token != nil {
		s.accessToken = token.AccessToken
		s.refreshToken = token.RefreshToken
		s.expiry = token.Expiry
	}
	return s
}

// Authorize exchanges a one-time authorization code for a new session.
func Authorize(ctx context.Context, issuer Issuer, code string, logger *slog.Logger) (*Session, error) {
	token, err := issuer.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("authorize: %w", ErrNoRefreshToken)
	}
	return NewSession(issuer, token, logger), nil
}

// FromRefreshToken builds a session from a stored refresh token and fetches
// the first access token right away.
func FromRefreshToken(ctx context.Context, issuer Issuer, refreshToken string, logger *slog.Logger) (*Session, error) {
	s := NewSession(issuer, &oauth2.Token{RefreshToken: refreshToken}, logger)
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh trades the refresh token for a new access token. On failure the
// previous tokens stay in place.
func (s *Session) Refresh(ctx context.Context) error {
	if s.refreshToken == "" {
		return ErrNoRefreshToken
	}

	token, err := s.issuer.Refresh(ctx, s.refreshToken)
	if err != nil {
		return err
	}
	if token.AccessToken == "" {
		return errors.New("refresh token: empty access token in response")
	}

	s.accessToken = token.AccessToken
	s.expiry = token.Expiry
	if token.RefreshToken != "" && token.RefreshToken != s.refreshToken {
		s.refreshToken = token.RefreshToken
		s.logger.Info("refresh token rotated")
	}

	s.logger.Debug("access token refreshed", "expiry", s.expiry)
	return nil
}

func (s *Session) AccessToken() string {
	return s.accessToken
}

func (s *Session) Expiry() time.Time {
	return s.expiry
}

// Expired reports whether the expiry hint has passed. A zero expiry means the
// issuer gave no hint, which is treated as not expired.
func (s *Session) Expired() bool {
	if s.expiry.IsZero() {
		return false
	}
	return !s.now().Before(s.expiry)
}
