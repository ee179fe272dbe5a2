package handshake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/adapter/consent"
	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

// LoginConfig is the immutable configuration of the login variant.
type LoginConfig struct {
	// DefaultSubject is accepted on skip when the provider reports no subject.
	DefaultSubject string
	RememberFor    time.Duration
}

// LoginStrategy leaves the challenge with the identity provider; nothing is stored locally.
type LoginStrategy struct {
	cfg      LoginConfig
	delegate consent.Delegate
	logger   *zap.Logger
}

var _ Strategy = (*LoginStrategy)(nil)

func NewLoginStrategy(cfg LoginConfig, delegate consent.Delegate, logger *zap.Logger) *LoginStrategy {
	return &LoginStrategy{cfg: cfg, delegate: delegate, logger: logger}
}

func (s *LoginStrategy) Variant() Variant {
	return VariantLogin
}

// Begin accepts a skippable challenge right away, otherwise asks for interaction.
func (s *LoginStrategy) Begin(ctx context.Context, req BeginRequest) (*Result, error) {
	loginReq, err := s.delegate.GetLoginRequest(ctx, req.Challenge)
	if err != nil {
		return nil, delegateError(err)
	}

	if !loginReq.Skip {
		return &Result{
			State:        StateAwaitingInteraction,
			LoginRequest: loginReq,
		}, nil
	}

	subject := firstNonEmpty(loginReq.Subject, s.cfg.DefaultSubject)
	if subject == "" {
		return nil, fmt.Errorf("skip without subject: %w", connection.ErrConsentDelegate)
	}

	redirect, err := s.delegate.AcceptLoginRequest(ctx, req.Challenge, connection.AcceptLogin{
		Subject: subject,
	})
	if err != nil {
		return nil, delegateError(err)
	}

	return &Result{
		State:        StateCompleted,
		RedirectURL:  redirect,
		LoginRequest: loginReq,
	}, nil
}

// Finish accepts the challenge for an authenticated subject.
func (s *LoginStrategy) Finish(ctx context.Context, req FinishRequest) (*Result, error) {
	accept := connection.AcceptLogin{
		Subject:  strings.TrimSpace(req.Subject),
		Remember: req.Remember,
	}
	if req.Remember {
		accept.RememberFor = s.cfg.RememberFor
	}

	redirect, err := s.delegate.AcceptLoginRequest(ctx, req.Challenge, accept)
	if err != nil {
		return nil, delegateError(err)
	}
	return &Result{State: StateCompleted, RedirectURL: redirect}, nil
}

func delegateError(err error) error {
	if errors.Is(err, connection.ErrConsentDelegate) || errors.Is(err, connection.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", connection.ErrConsentDelegate, err)
}
