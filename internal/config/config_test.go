package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("API_KEY_SHOPIFY", "key")
	t.Setenv("API_SECRET_SHOPIFY", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/connect")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:3030", cfg.ListenAddr())
	require.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	require.Equal(t, []string{"read_orders", "write_orders"}, cfg.ShopifyScopes)
	require.Equal(t, "https://localhost:3030/shopify_confirm", cfg.ShopifyRedirectURI)
	require.Equal(t, "/", cfg.InstallCompleteURL)
	require.True(t, cfg.VerifySignatures)
	require.Equal(t, 10*time.Second, cfg.ExchangeTimeout)
	require.Equal(t, "http://127.0.0.1:4445", cfg.HydraAdminURL)
	require.Equal(t, time.Hour, cfg.LoginRememberFor)
	require.Equal(t, int64(1), cfg.SnowflakeNode)
	require.Equal(t, "valora-connect", cfg.ServiceName)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8443")
	t.Setenv("SHOPIFY_SCOPES", " read_products , ,write_products")
	t.Setenv("VERIFY_SIGNATURES", "off")
	t.Setenv("EXCHANGE_TIMEOUT", "250ms")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8443", cfg.ListenAddr())
	require.Equal(t, []string{"read_products", "write_products"}, cfg.ShopifyScopes)
	require.False(t, cfg.VerifySignatures)
	require.Equal(t, 250*time.Millisecond, cfg.ExchangeTimeout)
	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]map[string]string{
		"missing api key":      {"API_KEY_SHOPIFY": ""},
		"missing database":     {"DATABASE_URL": ""},
		"unknown driver":       {"STORE_DRIVER": "mongo"},
		"tls without paths":    {"ENABLE_TLS": "true"},
		"half login bootstrap": {"LOGIN_USERNAME": "admin"},
		"node out of range":    {"SNOWFLAKE_NODE": "2048"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
