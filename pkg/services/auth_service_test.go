package services

import (
	"testing"
	"time"

	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupAuth(t *testing.T, ttl time.Duration) *AuthService {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewAuthService(db, ttl)
	svc.hashCost = bcrypt.MinCost
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	svc := setupAuth(t, time.Hour)

	session, err := svc.Register("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.NotEmpty(t, session.Token)

	username, err := svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	login, err := svc.Login("alice", "secret")
	require.NoError(t, err)
	assert.NotEqual(t, session.Token, login.Token)
}

func TestRegisterDuplicate(t *testing.T) {
	svc := setupAuth(t, time.Hour)

	_, err := svc.Register("alice", "secret")
	require.NoError(t, err)

	_, err = svc.Register("alice", "other")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Equal(t, "Username already exists.", err.Error())
}

func TestLoginFailures(t *testing.T) {
	svc := setupAuth(t, time.Hour)
	_, err := svc.Register("alice", "secret")
	require.NoError(t, err)

	_, err = svc.Login("alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login("nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "Invalid username or password.", err.Error())
}

func TestCredentialsRequired(t *testing.T) {
	svc := setupAuth(t, time.Hour)

	for _, tc := range [][2]string{{"", "x"}, {"alice", ""}, {"   ", "x"}} {
		_, err := svc.Register(tc[0], tc[1])
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, "Username and password are required.", appErr.Message)

		_, err = svc.Login(tc[0], tc[1])
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
	}
}

func TestLogoutAndExpiry(t *testing.T) {
	svc := setupAuth(t, time.Hour)
	session, err := svc.Register("alice", "secret")
	require.NoError(t, err)

	username, ok := svc.Logout(session.Token)
	assert.True(t, ok)
	assert.Equal(t, "alice", username)
	_, err = svc.Authenticate(session.Token)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, ok = svc.Logout(session.Token)
	assert.False(t, ok)

	short := setupAuth(t, 20*time.Millisecond)
	session, err = short.Register("bob", "secret")
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = short.Authenticate(session.Token)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestHasSessionTracksOtherSessions(t *testing.T) {
	svc := setupAuth(t, time.Hour)
	first, err := svc.Register("alice", "secret")
	require.NoError(t, err)
	second, err := svc.Login("alice", "secret")
	require.NoError(t, err)
	assert.False(t, svc.HasSession("bob"))

	_, ok := svc.Logout(first.Token)
	require.True(t, ok)
	assert.True(t, svc.HasSession("alice"))

	_, ok = svc.Logout(second.Token)
	require.True(t, ok)
	assert.False(t, svc.HasSession("alice"))
}
