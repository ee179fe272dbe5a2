package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

// TokenExchanger trades a one-time authorization code for an access token.
type TokenExchanger interface {
	Exchange(ctx context.Context, endpoint, clientID, clientSecret, code string) (*connection.AccessToken, error)
}

// HTTPTokenClient is the default HTTP implementation.
type HTTPTokenClient struct {
	httpClient *http.Client
}

var _ TokenExchanger = (*HTTPTokenClient)(nil)

// NewHTTPTokenClient constructs the default TokenExchanger.
func NewHTTPTokenClient(client *http.Client) *HTTPTokenClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTokenClient{httpClient: client}
}

// Exchange performs one POST against endpoint. It never retries.
func (c *HTTPTokenClient) Exchange(ctx context.Context, endpoint, clientID, clientSecret, code string) (*connection.AccessToken, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("token url missing: %w", connection.ErrValidation)
	}
	data := url.Values{}
	data.Set("client_id", clientID)
	data.Set("client_secret", clientSecret)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w: %w", connection.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w: %w", connection.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token exchange failed: status=%d: %w", resp.StatusCode, connection.ErrInvalidResponse)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w: %w", connection.ErrInvalidResponse, err)
	}

	token := &connection.AccessToken{
		AccessToken: stringValue(raw["access_token"]),
		Scope:       stringValue(raw["scope"]),
		Raw:         raw,
	}
	if exp := raw["expires_in"]; exp != nil {
		token.ExpiresIn = int64Value(exp)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, fmt.Errorf("token exchange: %w", connection.ErrEmptyResponse)
	}
	return token, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
