package identity

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/domain"
	"github.com/smallbiznis/valora-connect/internal/repository"
)

var fastParams = HashParams{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestHashPassword_RoundTrip(t *testing.T) {
	hashed, err := HashPassword("s3cret", fastParams)
	require.NoError(t, err)
	require.Contains(t, hashed, "$argon2id$v=19$m=8192,t=1,p=1$")

	ok, err := CheckPassword("s3cret", hashed)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = CheckPassword("wrong", hashed)
	require.NoError(t, err)
	require.False(t, ok)

	again, err := HashPassword("s3cret", fastParams)
	require.NoError(t, err)
	require.NotEqual(t, hashed, again)
}

func TestCheckPassword_Malformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=1,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$!!$a2V5",
	} {
		_, err := CheckPassword("pw", encoded)
		require.ErrorIs(t, err, ErrMalformedHash, encoded)
	}
}

func newUsers(t *testing.T) *repository.MemoryUserRepo {
	t.Helper()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return repository.NewMemoryUserRepo(node)
}

func TestPasswordAuthenticator(t *testing.T) {
	users := newUsers(t)
	ctx := context.Background()

	hashed, err := HashPassword("pw", fastParams)
	require.NoError(t, err)
	alice, err := users.Create(ctx, domain.LoginUser{Username: "alice", PasswordHash: hashed})
	require.NoError(t, err)
	_, err = users.Create(ctx, domain.LoginUser{Username: "bob", PasswordHash: hashed, Status: "DISABLED"})
	require.NoError(t, err)
	_, err = users.Create(ctx, domain.LoginUser{Username: "carol", PasswordHash: "garbage"})
	require.NoError(t, err)

	auth := NewPasswordAuthenticator(users, zap.NewNop())

	got, err := auth.Authenticate(ctx, " Alice ", "pw")
	require.NoError(t, err)
	require.Equal(t, alice.Subject(), got.Subject())

	for _, tc := range []struct{ user, pass string }{
		{"alice", "nope"},
		{"bob", "pw"},
		{"carol", "pw"},
		{"dave", "pw"},
		{"", "pw"},
		{"alice", ""},
	} {
		_, err := auth.Authenticate(ctx, tc.user, tc.pass)
		require.ErrorIs(t, err, ErrInvalidCredentials, tc.user)
	}
}

func TestEnsureUser(t *testing.T) {
	users := newUsers(t)
	ctx := context.Background()

	created, fresh, err := EnsureUser(ctx, users, "Admin", "pw")
	require.NoError(t, err)
	require.True(t, fresh)
	require.Equal(t, "admin", created.Username)

	again, fresh, err := EnsureUser(ctx, users, "admin", "other")
	require.NoError(t, err)
	require.False(t, fresh)
	require.Equal(t, created.ID, again.ID)

	_, err = NewPasswordAuthenticator(users, nil).Authenticate(ctx, "admin", "pw")
	require.NoError(t, err)

	_, _, err = EnsureUser(ctx, users, "", "pw")
	require.Error(t, err)
}
