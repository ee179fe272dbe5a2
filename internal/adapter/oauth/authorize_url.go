package oauth

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

const (
	authorizePath   = "/admin/oauth/authorize"
	accessTokenPath = "/admin/oauth/access_token"
)

// AuthorizeURLBuilder composes the remote authorize endpoint URL for a tenant.
type AuthorizeURLBuilder struct {
	// BaseURL replaces https://{tenant} when set.
	BaseURL string
	// AccessMode adds grant_options[] when set, e.g. "per-user".
	AccessMode string
}

// NewAuthorizeURLBuilder returns a builder targeting baseURL, or the tenant's own host when empty.
func NewAuthorizeURLBuilder(baseURL, accessMode string) *AuthorizeURLBuilder {
	return &AuthorizeURLBuilder{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		AccessMode: strings.TrimSpace(accessMode),
	}
}

// Build returns the authorize URL carrying client_id, scope, redirect_uri and state.
func (b *AuthorizeURLBuilder) Build(tenantID, clientID string, scopes []string, redirectURI, nonce string) (string, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(clientID) == "" || strings.TrimSpace(nonce) == "" {
		return "", fmt.Errorf("build authorize url: %w", connection.ErrValidation)
	}

	cfg := oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL: TenantBaseURL(b.BaseURL, tenantID) + authorizePath,
		},
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("scope", strings.Join(scopes, ",")),
	}
	if b.AccessMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam("grant_options[]", b.AccessMode))
	}
	return cfg.AuthCodeURL(nonce, opts...), nil
}

// TokenEndpoint returns the access token URL for a tenant.
func TokenEndpoint(baseURL, tenantID string) string {
	return TenantBaseURL(strings.TrimRight(strings.TrimSpace(baseURL), "/"), tenantID) + accessTokenPath
}

// TenantBaseURL is override when non-empty, otherwise https://{tenant}.
func TenantBaseURL(override, tenantID string) string {
	if override != "" {
		return override
	}
	return "https://" + connection.NormalizeTenant(tenantID)
}
