package handshake

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

func TestSignedMessage(t *testing.T) {
	q := url.Values{
		"shop":      {"acme.example"},
		"timestamp": {"1337178173"},
		"code":      {"abc"},
		"hmac":      {"ignored"},
		"signature": {"ignored"},
	}
	require.Equal(t, "code=abc&shop=acme.example&timestamp=1337178173", signedMessage(q))
}

func TestVerifySignature(t *testing.T) {
	q := url.Values{"shop": {"acme.example"}, "timestamp": {"1337178173"}}
	q.Set("hmac", Sign(q, "secret"))

	require.NoError(t, VerifySignature(q, "secret"))
	require.ErrorIs(t, VerifySignature(q, "other"), connection.ErrInvalidSignature)

	tampered := url.Values{"shop": {"evil.example"}, "timestamp": {"1337178173"}, "hmac": {q.Get("hmac")}}
	require.ErrorIs(t, VerifySignature(tampered, "secret"), connection.ErrInvalidSignature)

	unsigned := url.Values{"shop": {"acme.example"}}
	require.ErrorIs(t, VerifySignature(unsigned, "secret"), connection.ErrInvalidSignature)
}
