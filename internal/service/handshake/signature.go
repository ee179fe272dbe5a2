package handshake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

// signatureParams are excluded from the signed message.
var signatureParams = map[string]struct{}{
	"hmac":      {},
	"signature": {},
}

// Sign returns the hex HMAC-SHA256 of query under secret.
func Sign(query url.Values, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedMessage(query)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the hmac parameter of a callback query string.
func VerifySignature(query url.Values, secret string) error {
	if secret == "" {
		return fmt.Errorf("signing secret missing: %w", connection.ErrInvalidSignature)
	}
	given := strings.ToLower(strings.TrimSpace(query.Get("hmac")))
	if given == "" {
		return fmt.Errorf("hmac missing: %w", connection.ErrInvalidSignature)
	}
	expected := Sign(query, secret)
	if !hmac.Equal([]byte(given), []byte(expected)) {
		return connection.ErrInvalidSignature
	}
	return nil
}

// signedMessage renders k=v pairs sorted by key and joined by &. Repeated keys
// join their values with a comma.
func signedMessage(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if _, skip := signatureParams[k]; skip {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(query[k], ","))
	}
	return strings.Join(parts, "&")
}
