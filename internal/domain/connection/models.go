package connection

import (
	"strings"
	"time"
)

// PendingConnection is one initiated install handshake for a tenant.
type PendingConnection struct {
	ID          int64
	TenantID    string
	Nonce       string
	AccessToken string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
	Active      bool
}

// Completed reports whether the exchange already stored an access token.
func (c PendingConnection) Completed() bool {
	return c.AccessToken != ""
}

// Deleted reports whether the record was logically removed.
func (c PendingConnection) Deleted() bool {
	return c.DeletedAt != nil
}

// Pending reports whether the record can still accept a callback.
func (c PendingConnection) Pending() bool {
	return c.Active && !c.Completed() && !c.Deleted()
}

// AccessToken is the normalized token endpoint response.
type AccessToken struct {
	AccessToken string
	Scope       string
	ExpiresIn   int64
	Raw         map[string]any
}

// LoginRequest is the identity provider's view of a login challenge.
type LoginRequest struct {
	Challenge  string
	Skip       bool
	Subject    string
	ClientID   string
	RequestURL string
}

// AcceptLogin carries the decision sent back for a login challenge.
type AcceptLogin struct {
	Subject     string
	Remember    bool
	RememberFor time.Duration
}

// NormalizeTenant lower-cases and trims a shop domain.
func NormalizeTenant(tenantID string) string {
	return strings.ToLower(strings.TrimSpace(tenantID))
}
