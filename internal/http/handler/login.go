package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/identity"
	"github.com/smallbiznis/valora-connect/internal/service/handshake"
)

// LoginHandler serves the identity provider login challenge pages.
type LoginHandler struct {
	engine *handshake.Engine
	auth   identity.Authenticator
	logger *zap.Logger
}

func NewLoginHandler(engine *handshake.Engine, auth identity.Authenticator, logger *zap.Logger) *LoginHandler {
	return &LoginHandler{engine: engine, auth: auth, logger: logger}
}

// Show handles GET /login. Skippable challenges redirect straight away.
func (h *LoginHandler) Show(c *gin.Context) {
	challenge := strings.TrimSpace(c.Query("login_challenge"))
	if challenge == "" {
		c.HTML(http.StatusOK, "login.html", loginView{})
		return
	}

	res, err := h.engine.Begin(c.Request.Context(), handshake.BeginRequest{Challenge: challenge})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if res.State == handshake.StateAwaitingInteraction {
		c.HTML(http.StatusOK, "login.html", loginView{Challenge: challenge})
		return
	}
	c.Redirect(http.StatusFound, res.RedirectURL)
}

// Submit handles POST /login.
func (h *LoginHandler) Submit(c *gin.Context) {
	challenge := strings.TrimSpace(c.PostForm("login_challenge"))
	if challenge == "" {
		c.Redirect(http.StatusFound, fallbackLocation)
		return
	}

	username := c.PostForm("username")
	user, err := h.auth.Authenticate(c.Request.Context(), username, c.PostForm("password"))
	if errors.Is(err, identity.ErrInvalidCredentials) {
		c.HTML(http.StatusUnauthorized, "login.html", loginView{
			Challenge: challenge,
			Username:  username,
			Error:     "Invalid username or password.",
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.engine.Finish(c.Request.Context(), handshake.FinishRequest{
		Challenge: challenge,
		Subject:   user.Subject(),
		Remember:  isChecked(c.PostForm("remember")),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Redirect(http.StatusFound, res.RedirectURL)
}

// Health handles GET /healthz.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func isChecked(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}
