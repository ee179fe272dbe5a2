package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

func TestAuthorizeURLBuilder_TenantHost(t *testing.T) {
	b := NewAuthorizeURLBuilder("", "")

	raw, err := b.Build("Acme.example", "client-1", []string{"read_orders", "write_orders"}, "https://app.example/shopify_confirm", "n1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "https", u.Scheme)
	require.Equal(t, "acme.example", u.Host)
	require.Equal(t, "/admin/oauth/authorize", u.Path)

	q := u.Query()
	require.Equal(t, "client-1", q.Get("client_id"))
	require.Equal(t, "https://app.example/shopify_confirm", q.Get("redirect_uri"))
	require.Equal(t, "read_orders,write_orders", q.Get("scope"))
	require.Equal(t, "n1", q.Get("state"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Empty(t, q.Get("grant_options[]"))
}

func TestAuthorizeURLBuilder_OverrideAndAccessMode(t *testing.T) {
	b := NewAuthorizeURLBuilder("http://127.0.0.1:9999/", "per-user")

	raw, err := b.Build("acme.example", "client-1", nil, "https://app.example/cb?x=1&y=2", "a b")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", u.Host)
	require.Equal(t, "per-user", u.Query().Get("grant_options[]"))
	require.Equal(t, "https://app.example/cb?x=1&y=2", u.Query().Get("redirect_uri"))
	require.Equal(t, "a b", u.Query().Get("state"))
	require.NotContains(t, raw, "a b")
}

func TestAuthorizeURLBuilder_Deterministic(t *testing.T) {
	b := NewAuthorizeURLBuilder("", "")
	first, err := b.Build("acme.example", "c", []string{"s"}, "https://r", "n")
	require.NoError(t, err)
	second, err := b.Build("acme.example", "c", []string{"s"}, "https://r", "n")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAuthorizeURLBuilder_RejectsBlank(t *testing.T) {
	_, err := NewAuthorizeURLBuilder("", "").Build("", "c", nil, "https://r", "n")
	require.ErrorIs(t, err, connection.ErrValidation)
}

func TestTokenEndpoint(t *testing.T) {
	require.Equal(t, "https://acme.example/admin/oauth/access_token", TokenEndpoint("", "ACME.example"))
	require.Equal(t, "http://stub/admin/oauth/access_token", TokenEndpoint("http://stub/", "acme.example"))
}

func TestHTTPTokenClient_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
		assert.Equal(t, "abc", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"T","scope":"read_orders","expires_in":86399}`))
	}))
	defer srv.Close()

	token, err := NewHTTPTokenClient(nil).Exchange(context.Background(), srv.URL, "client-1", "secret-1", "abc")
	require.NoError(t, err)
	require.Equal(t, "T", token.AccessToken)
	require.Equal(t, "read_orders", token.Scope)
	require.Equal(t, int64(86399), token.ExpiresIn)
	require.Equal(t, "T", token.Raw["access_token"])
}

func TestHTTPTokenClient_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "non 2xx", status: http.StatusBadRequest, body: `{"error":"invalid_request"}`, want: connection.ErrInvalidResponse},
		{name: "unparsable", status: http.StatusOK, body: `<html>`, want: connection.ErrInvalidResponse},
		{name: "missing token", status: http.StatusOK, body: `{"scope":"read_orders"}`, want: connection.ErrEmptyResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPTokenClient(nil).Exchange(context.Background(), srv.URL, "c", "s", "code")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestHTTPTokenClient_NetworkFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	_, err := NewHTTPTokenClient(nil).Exchange(context.Background(), endpoint, "c", "s", "code")
	require.ErrorIs(t, err, connection.ErrNetwork)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	client := NewHTTPTokenClient(&http.Client{Timeout: 50 * time.Millisecond})
	_, err = client.Exchange(context.Background(), slow.URL, "c", "s", "code")
	require.ErrorIs(t, err, connection.ErrNetwork)
}
