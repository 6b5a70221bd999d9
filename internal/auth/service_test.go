package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialpulse/socialpulse/internal/identity"
)

func newAuth(t *testing.T) (*Service, identity.User) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo, nil)
	user, err := ids.Register(context.Background(), identity.Registration{Email: "ada@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	return NewService(Options{AccessSecret: "access-secret", RefreshSecret: "refresh-secret", AccessTTL: time.Minute}, repo), user
}

func TestLoginVerifyAndLogout(t *testing.T) {
	svc, user := newAuth(t)
	ctx := context.Background()

	pair, err := svc.Login(user)
	require.NoError(t, err)
	assert.EqualValues(t, 60, pair.ExpiresIn)

	id, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	require.NoError(t, svc.Logout(ctx, user.ID))
	_, err = svc.Verify(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	svc, user := newAuth(t)
	pair, err := svc.Login(user)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	access, _, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	id, err := svc.Verify(context.Background(), access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestExpiredAndForeignTokensRejected(t *testing.T) {
	svc, user := newAuth(t)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	pair, err := svc.Login(user)
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewService(Options{AccessSecret: "someone-else"}, identity.NewMemoryRepository())
	foreign, err := other.Login(user)
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.Verify(context.Background(), foreign.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
