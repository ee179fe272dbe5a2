// Package handshake drives the two authorization handshakes the service brokers:
// the merchant app install and the identity provider login challenge. Both share
// one Engine; the variant-specific steps live in a Strategy.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

// Variant names a handshake flavour.
type Variant string

const (
	VariantInstall Variant = "install"
	VariantLogin   Variant = "login"
)

// State is the position of a handshake in its lifecycle.
type State string

const (
	StateStarted             State = "started"
	StateAwaitingInteraction State = "awaiting_interaction"
	StateCallbackReceived    State = "callback_received"
	StateCompleted           State = "completed"
	StateRejected            State = "rejected"
	StateExchangeFailed      State = "exchange_failed"
)

// BeginRequest opens a handshake. Install uses the tenant fields, login the challenge.
type BeginRequest struct {
	TenantID    string
	ClientID    string
	Scopes      []string
	RedirectURI string

	Challenge string
}

// FinishRequest closes a handshake from the callback or the submitted login form.
type FinishRequest struct {
	TenantID string
	State    string
	Code     string

	Challenge string
	Subject   string
	Remember  bool
}

// Result is the outcome of one engine step.
type Result struct {
	Variant     Variant
	State       State
	RedirectURL string

	Nonce        string
	Connection   *connection.PendingConnection
	LoginRequest *connection.LoginRequest
}

// Strategy is the capability set of one handshake variant. On failure a strategy
// may return a Result alongside the error to report the terminal state. Without
// one the failure is reported against the step's entry state: started for Begin,
// callback_received for Finish.
type Strategy interface {
	Variant() Variant
	Begin(ctx context.Context, req BeginRequest) (*Result, error)
	Finish(ctx context.Context, req FinishRequest) (*Result, error)
}

// Error is returned by the Engine for every failed step.
type Error struct {
	Variant Variant
	State   State
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s handshake %s: %v", e.Variant, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Engine runs a Strategy with shared validation, tracing and transition logging.
type Engine struct {
	strategy Strategy
	tracer   trace.Tracer
	logger   *zap.Logger
}

// InstrumentationName names the tracer the engine opens its spans on.
const InstrumentationName = "github.com/smallbiznis/valora-connect/internal/service/handshake"

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// NewEngine wraps strategy.
func NewEngine(strategy Strategy, logger *zap.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		strategy: strategy,
		tracer:   otel.Tracer(InstrumentationName),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) log() *zap.Logger {
	if e.logger != nil {
		return e.logger
	}
	return zap.L()
}

// Variant reports the wrapped strategy's variant.
func (e *Engine) Variant() Variant {
	return e.strategy.Variant()
}

// Begin validates req and opens a handshake.
func (e *Engine) Begin(ctx context.Context, req BeginRequest) (*Result, error) {
	variant := e.strategy.Variant()
	ctx, span := e.tracer.Start(ctx, "handshake."+string(variant)+".begin")
	defer span.End()
	span.SetAttributes(
		attribute.String("handshake.variant", string(variant)),
		attribute.String("handshake.tenant", req.TenantID),
	)

	if err := req.validate(variant); err != nil {
		return nil, e.fail(span, variant, StateRejected, req.TenantID, err)
	}

	res, err := e.strategy.Begin(ctx, req)
	if err != nil {
		return nil, e.fail(span, variant, stateOf(res, StateStarted), req.TenantID, err)
	}
	return e.succeed(span, variant, req.TenantID, res), nil
}

// Finish validates req and closes a handshake.
func (e *Engine) Finish(ctx context.Context, req FinishRequest) (*Result, error) {
	variant := e.strategy.Variant()
	ctx, span := e.tracer.Start(ctx, "handshake."+string(variant)+".finish")
	defer span.End()
	span.SetAttributes(
		attribute.String("handshake.variant", string(variant)),
		attribute.String("handshake.tenant", req.TenantID),
	)

	if err := req.validate(variant); err != nil {
		return nil, e.fail(span, variant, StateRejected, req.TenantID, err)
	}

	res, err := e.strategy.Finish(ctx, req)
	if err != nil {
		return nil, e.fail(span, variant, stateOf(res, StateCallbackReceived), req.TenantID, err)
	}
	return e.succeed(span, variant, req.TenantID, res), nil
}

func (e *Engine) succeed(span trace.Span, variant Variant, tenantID string, res *Result) *Result {
	if res == nil {
		res = &Result{State: StateCompleted}
	}
	res.Variant = variant
	span.SetAttributes(attribute.String("handshake.state", string(res.State)))
	e.log().Info("handshake transition",
		zap.String("variant", string(variant)),
		zap.String("tenant", tenantID),
		zap.String("state", string(res.State)),
	)
	return res
}

func (e *Engine) fail(span trace.Span, variant Variant, state State, tenantID string, err error) error {
	var herr *Error
	if !errors.As(err, &herr) {
		herr = &Error{Variant: variant, State: state, Err: err}
	}
	span.RecordError(herr)
	span.SetStatus(codes.Error, string(herr.State))
	span.SetAttributes(attribute.String("handshake.state", string(herr.State)))

	level := e.log().Warn
	if errors.Is(err, connection.ErrStorage) {
		level = e.log().Error
	}
	level("handshake transition",
		zap.String("variant", string(variant)),
		zap.String("tenant", tenantID),
		zap.String("state", string(herr.State)),
		zap.Error(err),
	)
	return herr
}

func stateOf(res *Result, fallback State) State {
	if res == nil || res.State == "" {
		return fallback
	}
	return res.State
}

func (r BeginRequest) validate(variant Variant) error {
	switch variant {
	case VariantInstall:
		if strings.TrimSpace(r.TenantID) == "" {
			return fmt.Errorf("missing shop: %w", connection.ErrValidation)
		}
	case VariantLogin:
		if strings.TrimSpace(r.Challenge) == "" {
			return fmt.Errorf("missing login_challenge: %w", connection.ErrValidation)
		}
	}
	return nil
}

func (r FinishRequest) validate(variant Variant) error {
	switch variant {
	case VariantInstall:
		switch {
		case strings.TrimSpace(r.TenantID) == "":
			return fmt.Errorf("missing shop: %w", connection.ErrValidation)
		case strings.TrimSpace(r.State) == "":
			return fmt.Errorf("missing state: %w", connection.ErrValidation)
		case strings.TrimSpace(r.Code) == "":
			return fmt.Errorf("missing code: %w", connection.ErrValidation)
		}
	case VariantLogin:
		switch {
		case strings.TrimSpace(r.Challenge) == "":
			return fmt.Errorf("missing login_challenge: %w", connection.ErrValidation)
		case strings.TrimSpace(r.Subject) == "":
			return fmt.Errorf("missing subject: %w", connection.ErrValidation)
		}
	}
	return nil
}
