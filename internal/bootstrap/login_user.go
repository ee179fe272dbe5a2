package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/config"
	"github.com/smallbiznis/valora-connect/internal/identity"
	"github.com/smallbiznis/valora-connect/internal/repository"
)

// EnsureLoginUser seeds LOGIN_USERNAME/LOGIN_PASSWORD on start when configured.
func EnsureLoginUser(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureLoginUser(ctx, cfg, users, logger)
		},
	})
}

func ensureLoginUser(ctx context.Context, cfg config.Config, users repository.UserRepository, logger *zap.Logger) error {
	if cfg.LoginUsername == "" {
		return nil
	}

	user, created, err := identity.EnsureUser(ctx, users, cfg.LoginUsername, cfg.LoginPassword)
	if err != nil {
		return fmt.Errorf("bootstrap login user: %w", err)
	}

	if created && logger != nil {
		logger.Info("bootstrap login user created",
			zap.String("username", user.Username),
			zap.Int64("user_id", user.ID),
		)
	}
	return nil
}
