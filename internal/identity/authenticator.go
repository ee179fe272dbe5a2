// Package identity resolves the credentials typed into the login form to the
// subject accepted on the identity provider's login challenge.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/domain"
	"github.com/smallbiznis/valora-connect/internal/repository"
)

// ErrInvalidCredentials covers unknown users, inactive users and wrong passwords alike.
var ErrInvalidCredentials = errors.New("identity: invalid credentials")

// Authenticator checks a username and password.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (domain.LoginUser, error)
}

// PasswordAuthenticator verifies argon2id hashes stored in a UserRepository.
type PasswordAuthenticator struct {
	users  repository.UserRepository
	logger *zap.Logger
}

var _ Authenticator = (*PasswordAuthenticator)(nil)

func NewPasswordAuthenticator(users repository.UserRepository, logger *zap.Logger) *PasswordAuthenticator {
	return &PasswordAuthenticator{users: users, logger: logger}
}

func (a *PasswordAuthenticator) log() *zap.Logger {
	if a.logger != nil {
		return a.logger
	}
	return zap.L()
}

func (a *PasswordAuthenticator) Authenticate(ctx context.Context, username, password string) (domain.LoginUser, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return domain.LoginUser{}, ErrInvalidCredentials
	}

	user, err := a.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrUserNotFound) {
		return domain.LoginUser{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.LoginUser{}, fmt.Errorf("authenticate: %w", err)
	}
	if !user.IsActive() {
		a.log().Info("login refused for inactive user", zap.Int64("user_id", user.ID))
		return domain.LoginUser{}, ErrInvalidCredentials
	}

	ok, err := CheckPassword(password, user.PasswordHash)
	if err != nil {
		a.log().Warn("stored password hash unreadable", zap.Int64("user_id", user.ID), zap.Error(err))
		return domain.LoginUser{}, ErrInvalidCredentials
	}
	if !ok {
		return domain.LoginUser{}, ErrInvalidCredentials
	}
	return user, nil
}

// EnsureUser creates username with password when it does not exist yet.
func EnsureUser(ctx context.Context, users repository.UserRepository, username, password string) (domain.LoginUser, bool, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return domain.LoginUser{}, false, fmt.Errorf("ensure user: username and password required")
	}

	existing, err := users.GetByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return domain.LoginUser{}, false, fmt.Errorf("ensure user lookup: %w", err)
	}

	hashed, err := HashPassword(password, DefaultHashParams)
	if err != nil {
		return domain.LoginUser{}, false, fmt.Errorf("ensure user hash: %w", err)
	}
	created, err := users.Create(ctx, domain.LoginUser{
		Username:     username,
		PasswordHash: hashed,
		Status:       domain.UserStatusActive,
	})
	if err != nil {
		return domain.LoginUser{}, false, fmt.Errorf("ensure user create: %w", err)
	}
	return created, true, nil
}
