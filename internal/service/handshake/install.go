package handshake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/adapter/oauth"
	"github.com/smallbiznis/valora-connect/internal/domain/connection"
	"github.com/smallbiznis/valora-connect/internal/nonce"
	"github.com/smallbiznis/valora-connect/internal/repository"
)

// InstallConfig is the immutable configuration of the install variant.
type InstallConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	RedirectURI  string
	// TokenBaseURL replaces https://{shop} for the access token call when set.
	TokenBaseURL string
	// CompleteURL is where the browser lands after a successful exchange.
	CompleteURL string
}

// InstallStrategy owns the correlation nonce locally and exchanges the code itself.
type InstallStrategy struct {
	cfg       InstallConfig
	store     repository.ConnectionStore
	nonces    nonce.Generator
	urls      *oauth.AuthorizeURLBuilder
	exchanger oauth.TokenExchanger
	logger    *zap.Logger
}

var _ Strategy = (*InstallStrategy)(nil)

// NewInstallStrategy wires the install variant.
func NewInstallStrategy(
	cfg InstallConfig,
	store repository.ConnectionStore,
	nonces nonce.Generator,
	urls *oauth.AuthorizeURLBuilder,
	exchanger oauth.TokenExchanger,
	logger *zap.Logger,
) *InstallStrategy {
	if cfg.CompleteURL == "" {
		cfg.CompleteURL = "/"
	}
	return &InstallStrategy{
		cfg:       cfg,
		store:     store,
		nonces:    nonces,
		urls:      urls,
		exchanger: exchanger,
		logger:    logger,
	}
}

func (s *InstallStrategy) log() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func (s *InstallStrategy) Variant() Variant {
	return VariantInstall
}

// Begin issues a nonce, persists the pending record and returns the authorize URL.
func (s *InstallStrategy) Begin(ctx context.Context, req BeginRequest) (*Result, error) {
	tenantID := connection.NormalizeTenant(req.TenantID)

	value, err := s.nonces.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	record, err := s.store.Create(ctx, tenantID, value)
	if err != nil {
		return nil, err
	}

	clientID := firstNonEmpty(req.ClientID, s.cfg.ClientID)
	redirectURI := firstNonEmpty(req.RedirectURI, s.cfg.RedirectURI)
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = s.cfg.Scopes
	}

	authURL, err := s.urls.Build(tenantID, clientID, scopes, redirectURI, value)
	if err != nil {
		return nil, err
	}

	return &Result{
		State:       StateStarted,
		RedirectURL: authURL,
		Nonce:       value,
		Connection:  record,
	}, nil
}

// Finish matches the callback to its pending record, exchanges the code and
// stores the token. A failed exchange is never retried here.
func (s *InstallStrategy) Finish(ctx context.Context, req FinishRequest) (*Result, error) {
	tenantID := connection.NormalizeTenant(req.TenantID)
	rejected := &Result{State: StateRejected}

	record, err := s.store.FindPending(ctx, tenantID, req.State)
	if err != nil {
		return nil, err
	}
	if record == nil {
		err := s.explainMissing(ctx, tenantID, req.State)
		if errors.Is(err, connection.ErrStorage) {
			return nil, err
		}
		return rejected, err
	}

	s.log().Info("handshake transition",
		zap.String("variant", string(VariantInstall)),
		zap.String("tenant", tenantID),
		zap.String("state", string(StateCallbackReceived)),
		zap.Int64("connection_id", record.ID),
	)

	endpoint := oauth.TokenEndpoint(s.cfg.TokenBaseURL, tenantID)
	token, err := s.exchanger.Exchange(ctx, endpoint, s.cfg.ClientID, s.cfg.ClientSecret, req.Code)
	if err != nil {
		// The record is retired whatever the cause; a retry needs a fresh Begin.
		if abandonErr := s.store.Abandon(ctx, record); abandonErr != nil {
			s.log().Warn("abandon connection failed",
				zap.Int64("connection_id", record.ID),
				zap.Error(abandonErr),
			)
		}
		return &Result{State: StateExchangeFailed, Connection: record}, err
	}

	if err := s.store.Complete(ctx, record, token.AccessToken); err != nil {
		if errors.Is(err, connection.ErrStorage) {
			return nil, err
		}
		return rejected, err
	}

	return &Result{
		State:       StateCompleted,
		RedirectURL: s.cfg.CompleteURL,
		Nonce:       record.Nonce,
		Connection:  record,
	}, nil
}

func (s *InstallStrategy) explainMissing(ctx context.Context, tenantID, state string) error {
	latest, err := s.store.FindLatest(ctx, tenantID, state)
	if err != nil {
		return err
	}
	if latest != nil && latest.Completed() {
		return fmt.Errorf("callback for %s: %w", tenantID, connection.ErrAlreadyCompleted)
	}
	return fmt.Errorf("callback for %s: %w", tenantID, connection.ErrUnknownHandshake)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
