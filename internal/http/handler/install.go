package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
	"github.com/smallbiznis/valora-connect/internal/service/handshake"
)

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)

// InstallHandler serves the app install endpoints.
type InstallHandler struct {
	engine *handshake.Engine
	secret string
	verify bool
	logger *zap.Logger
}

// NewInstallHandler builds the install endpoints. With verify set every request
// must carry a valid hmac computed with secret.
func NewInstallHandler(engine *handshake.Engine, secret string, verify bool, logger *zap.Logger) *InstallHandler {
	return &InstallHandler{engine: engine, secret: secret, verify: verify, logger: logger}
}

// Install handles GET /shopify_install and redirects to the authorize URL.
func (h *InstallHandler) Install(c *gin.Context) {
	query := c.Request.URL.Query()
	shop, err := h.admit(query)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.engine.Begin(c.Request.Context(), handshake.BeginRequest{TenantID: shop})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Redirect(http.StatusFound, res.RedirectURL)
}

// Confirm handles GET /shopify_confirm, the authorize callback.
func (h *InstallHandler) Confirm(c *gin.Context) {
	query := c.Request.URL.Query()
	shop, err := h.admit(query)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.engine.Finish(c.Request.Context(), handshake.FinishRequest{
		TenantID: shop,
		State:    query.Get("state"),
		Code:     query.Get("code"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Redirect(http.StatusFound, res.RedirectURL)
}

// admit checks the shop parameter and the request signature.
func (h *InstallHandler) admit(query url.Values) (string, error) {
	shop := connection.NormalizeTenant(query.Get("shop"))
	if shop == "" {
		return "", fmt.Errorf("missing shop: %w", connection.ErrValidation)
	}
	if len(shop) > 255 || !shopDomainPattern.MatchString(shop) {
		return "", fmt.Errorf("invalid shop domain: %w", connection.ErrValidation)
	}
	if h.verify {
		if err := handshake.VerifySignature(query, h.secret); err != nil {
			return "", err
		}
	}
	return shop, nil
}
