// Package consent talks to the identity provider's admin API on behalf of the
// login variant of the handshake.
package consent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

const (
	loginRequestPath = "/admin/oauth2/auth/requests/login"
	acceptLoginPath  = "/admin/oauth2/auth/requests/login/accept"
)

// Delegate resolves and accepts login challenges owned by the identity provider.
type Delegate interface {
	GetLoginRequest(ctx context.Context, challenge string) (*connection.LoginRequest, error)
	AcceptLoginRequest(ctx context.Context, challenge string, accept connection.AcceptLogin) (string, error)
}

// HydraClient implements Delegate against the Ory Hydra admin API.
type HydraClient struct {
	adminURL   string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Delegate = (*HydraClient)(nil)

// NewHydraClient constructs a client for adminURL. A nil client gets a 10s timeout.
func NewHydraClient(adminURL string, client *http.Client, logger *zap.Logger) *HydraClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HydraClient{
		adminURL:   strings.TrimRight(strings.TrimSpace(adminURL), "/"),
		httpClient: client,
		logger:     logger,
	}
}

func (c *HydraClient) log() *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return zap.L()
}

type loginRequestResponse struct {
	Challenge  string `json:"challenge"`
	Skip       bool   `json:"skip"`
	Subject    string `json:"subject"`
	RequestURL string `json:"request_url"`
	Client     struct {
		ClientID string `json:"client_id"`
	} `json:"client"`
}

type acceptLoginBody struct {
	Subject     string `json:"subject"`
	Remember    bool   `json:"remember"`
	RememberFor int64  `json:"remember_for"`
}

type redirectResponse struct {
	RedirectTo string `json:"redirect_to"`
}

// GetLoginRequest fetches the login request identified by challenge.
func (c *HydraClient) GetLoginRequest(ctx context.Context, challenge string) (*connection.LoginRequest, error) {
	if strings.TrimSpace(challenge) == "" {
		return nil, fmt.Errorf("get login request: %w", connection.ErrValidation)
	}

	var payload loginRequestResponse
	if err := c.do(ctx, http.MethodGet, loginRequestPath, challenge, nil, &payload); err != nil {
		return nil, fmt.Errorf("get login request: %w", err)
	}

	return &connection.LoginRequest{
		Challenge:  challenge,
		Skip:       payload.Skip,
		Subject:    payload.Subject,
		ClientID:   payload.Client.ClientID,
		RequestURL: payload.RequestURL,
	}, nil
}

// AcceptLoginRequest confirms the login and returns where the browser goes next.
func (c *HydraClient) AcceptLoginRequest(ctx context.Context, challenge string, accept connection.AcceptLogin) (string, error) {
	if strings.TrimSpace(challenge) == "" || strings.TrimSpace(accept.Subject) == "" {
		return "", fmt.Errorf("accept login request: %w", connection.ErrValidation)
	}

	body := acceptLoginBody{
		Subject:  accept.Subject,
		Remember: accept.Remember,
	}
	if accept.Remember {
		body.RememberFor = int64(accept.RememberFor / time.Second)
	}

	var payload redirectResponse
	if err := c.do(ctx, http.MethodPut, acceptLoginPath, challenge, body, &payload); err != nil {
		return "", fmt.Errorf("accept login request: %w", err)
	}
	if strings.TrimSpace(payload.RedirectTo) == "" {
		return "", fmt.Errorf("accept login request: missing redirect_to: %w", connection.ErrConsentDelegate)
	}
	return payload.RedirectTo, nil
}

func (c *HydraClient) do(ctx context.Context, method, path, challenge string, in any, out any) error {
	endpoint := c.adminURL + path + "?" + url.Values{"login_challenge": {challenge}}.Encode()

	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w: %w", connection.ErrConsentDelegate, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, connection.ErrConsentDelegate, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w: %w", connection.ErrConsentDelegate, err)
	}
	if resp.StatusCode >= 300 {
		c.log().Warn("consent delegate rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%s %s: status=%d: %w", method, path, resp.StatusCode, connection.ErrConsentDelegate)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w: %w", connection.ErrConsentDelegate, err)
	}
	return nil
}
