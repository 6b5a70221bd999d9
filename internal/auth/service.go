package auth

import (
	"context"
	"errors"
	"time"

	"github.com/socialpulse/socialpulse/internal/identity"
)

var ErrTokenRevoked = errors.New("token version invalidated")

// Options configures token issuance.
type Options struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Service struct {
	opts   Options
	idRepo identity.Repository
	now    func() time.Time
}

func NewService(opts Options, idRepo identity.Repository) *Service {
	if opts.RefreshSecret == "" {
		opts.RefreshSecret = opts.AccessSecret
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Service{opts: opts, idRepo: idRepo, now: time.Now}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues tokens for an authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	now := s.now()
	access, _, err := signToken(user.ID, user.TokenVersion, tokenAccess, []byte(s.opts.AccessSecret), s.opts.AccessTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := signToken(user.ID, user.TokenVersion, tokenRefresh, []byte(s.opts.RefreshSecret), s.opts.RefreshTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.opts.AccessTTL.Seconds())}, nil
}

// Verify checks an access token and that its version is still current. It
// returns the user id.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	claims, err := parseToken(token, tokenAccess, []byte(s.opts.AccessSecret))
	if err != nil {
		return "", err
	}
	user, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return "", ErrInvalidToken
	}
	if user.TokenVersion != claims.Version {
		return "", ErrTokenRevoked
	}
	return user.ID, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := parseToken(refreshToken, tokenRefresh, []byte(s.opts.RefreshSecret))
	if err != nil {
		return "", 0, err
	}
	user, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return "", 0, ErrInvalidToken
	}
	if user.TokenVersion != claims.Version {
		return "", 0, ErrTokenRevoked
	}
	signed, _, err := signToken(user.ID, user.TokenVersion, tokenAccess, []byte(s.opts.AccessSecret), s.opts.AccessTTL, s.now())
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.opts.AccessTTL.Seconds()), nil
}

// Logout increments token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.idRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}
