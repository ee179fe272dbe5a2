package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/valora-connect/internal/adapter/cache"
	"github.com/smallbiznis/valora-connect/internal/adapter/consent"
	oauthadapter "github.com/smallbiznis/valora-connect/internal/adapter/oauth"
	"github.com/smallbiznis/valora-connect/internal/bootstrap"
	"github.com/smallbiznis/valora-connect/internal/config"
	httptransport "github.com/smallbiznis/valora-connect/internal/http"
	"github.com/smallbiznis/valora-connect/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-connect/internal/http/middleware"
	"github.com/smallbiznis/valora-connect/internal/identity"
	"github.com/smallbiznis/valora-connect/internal/nonce"
	"github.com/smallbiznis/valora-connect/internal/repository"
	"github.com/smallbiznis/valora-connect/internal/server"
	"github.com/smallbiznis/valora-connect/internal/service/handshake"
	"github.com/smallbiznis/valora-connect/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newConnectionStore,
			newUserRepository,
			newNonceGenerator,
			newAuthorizeURLBuilder,
			newTokenExchanger,
			newConsentDelegate,
			newAuthenticator,
			newInstallHandler,
			newLoginHandler,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(ensureSchema, bootstrap.EnsureLoginUser, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

// newPGXPool returns a nil pool when the memory driver is selected.
func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

// newRedisClient returns nil unless the redis driver is selected.
func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	if cfg.StoreDriver != config.StoreDriverRedis {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newConnectionStore(cfg config.Config, pool *pgxpool.Pool, client redis.UniversalClient, node *snowflake.Node, logger *zap.Logger) repository.ConnectionStore {
	logger.Info("connection store selected", zap.String("driver", cfg.StoreDriver))
	switch cfg.StoreDriver {
	case config.StoreDriverRedis:
		return cacheadapter.NewRedisConnectionStore(client, node)
	case config.StoreDriverMemory:
		return repository.NewMemoryConnectionStore(node)
	default:
		return repository.NewPostgresConnectionStore(pool, node)
	}
}

func newUserRepository(cfg config.Config, pool *pgxpool.Pool, node *snowflake.Node) repository.UserRepository {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return repository.NewMemoryUserRepo(node)
	}
	return repository.NewPostgresUserRepo(pool, node)
}

func newNonceGenerator() nonce.Generator {
	return nonce.NewRandom()
}

func newAuthorizeURLBuilder(cfg config.Config) *oauthadapter.AuthorizeURLBuilder {
	return oauthadapter.NewAuthorizeURLBuilder(cfg.ShopifyAuthorizeBaseURL, cfg.ShopifyAccessMode)
}

func newTokenExchanger(cfg config.Config) oauthadapter.TokenExchanger {
	return oauthadapter.NewHTTPTokenClient(&http.Client{Timeout: cfg.ExchangeTimeout})
}

func newConsentDelegate(cfg config.Config, logger *zap.Logger) consent.Delegate {
	return consent.NewHydraClient(cfg.HydraAdminURL, &http.Client{Timeout: cfg.ConsentTimeout}, logger)
}

func newAuthenticator(users repository.UserRepository, logger *zap.Logger) identity.Authenticator {
	return identity.NewPasswordAuthenticator(users, logger)
}

func newInstallHandler(
	cfg config.Config,
	store repository.ConnectionStore,
	nonces nonce.Generator,
	urls *oauthadapter.AuthorizeURLBuilder,
	exchanger oauthadapter.TokenExchanger,
	traces *telemetry.Provider,
	logger *zap.Logger,
) *handler.InstallHandler {
	strategy := handshake.NewInstallStrategy(handshake.InstallConfig{
		ClientID:     cfg.ShopifyAPIKey,
		ClientSecret: cfg.ShopifyAPISecret,
		Scopes:       cfg.ShopifyScopes,
		RedirectURI:  cfg.ShopifyRedirectURI,
		TokenBaseURL: cfg.ShopifyTokenBaseURL,
		CompleteURL:  cfg.InstallCompleteURL,
	}, store, nonces, urls, exchanger, logger)

	engine := handshake.NewEngine(strategy, logger, handshake.WithTracer(traces.Tracer(handshake.InstrumentationName)))
	return handler.NewInstallHandler(engine, cfg.ShopifyAPISecret, cfg.VerifySignatures, logger)
}

func newLoginHandler(
	cfg config.Config,
	delegate consent.Delegate,
	auth identity.Authenticator,
	traces *telemetry.Provider,
	logger *zap.Logger,
) *handler.LoginHandler {
	strategy := handshake.NewLoginStrategy(handshake.LoginConfig{
		DefaultSubject: cfg.LoginDefaultSubject,
		RememberFor:    cfg.LoginRememberFor,
	}, delegate, logger)

	engine := handshake.NewEngine(strategy, logger, handshake.WithTracer(traces.Tracer(handshake.InstrumentationName)))
	return handler.NewLoginHandler(engine, auth, logger)
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func ensureSchema(lc fx.Lifecycle, pool *pgxpool.Pool) {
	if pool == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return repository.EnsureSchema(ctx, pool)
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := cfg.ListenAddr()
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
