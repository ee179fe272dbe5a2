package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
	"github.com/smallbiznis/valora-connect/internal/service/handshake"
)

// fallbackLocation is where a failed handshake sends the browser.
const fallbackLocation = "/"

func statusFor(err error) int {
	switch {
	case errors.Is(err, connection.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, connection.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, connection.ErrAlreadyCompleted):
		return http.StatusConflict
	case errors.Is(err, connection.ErrUnknownHandshake), errors.Is(err, connection.ErrNotFound):
		return http.StatusBadRequest
	case errors.Is(err, connection.ErrNetwork),
		errors.Is(err, connection.ErrInvalidResponse),
		errors.Is(err, connection.ErrEmptyResponse),
		errors.Is(err, connection.ErrConsentDelegate):
		return http.StatusBadGateway
	case errors.Is(err, connection.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError translates a handshake failure. Validation failures get a short
// plain-text 400; everything else carries its status and sends the browser to
// the fallback location.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	if logger == nil {
		logger = zap.L()
	}
	_ = c.Error(err)
	status := statusFor(err)

	fields := []zap.Field{zap.Int("status", status), zap.Error(err)}
	var herr *handshake.Error
	if errors.As(err, &herr) {
		fields = append(fields,
			zap.String("variant", string(herr.Variant)),
			zap.String("state", string(herr.State)),
		)
	}
	if status >= http.StatusInternalServerError {
		logger.Error("handshake failed", fields...)
	} else {
		logger.Warn("handshake failed", fields...)
	}

	if status == http.StatusBadRequest && errors.Is(err, connection.ErrValidation) {
		c.String(http.StatusBadRequest, "bad request: %s", validationMessage(err))
		return
	}

	c.Header("Refresh", "0; url="+fallbackLocation)
	c.HTML(status, "fallback.html", fallbackView{
		Title:    strings.ToLower(http.StatusText(status)),
		Location: fallbackLocation,
	})
}

func validationMessage(err error) string {
	var herr *handshake.Error
	if errors.As(err, &herr) {
		err = herr.Err
	}
	return strings.TrimSuffix(err.Error(), ": "+connection.ErrValidation.Error())
}
