package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
	StoreDriverMemory   = "memory"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	Host        string
	HTTPPort    string
	EnableTLS   bool
	CertPath    string
	KeyPath     string

	DatabaseURL   string
	StoreDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ShopifyAPIKey           string
	ShopifyAPISecret        string
	ShopifyScopes           []string
	ShopifyRedirectURI      string
	ShopifyAccessMode       string
	ShopifyAuthorizeBaseURL string
	ShopifyTokenBaseURL     string
	InstallCompleteURL      string
	VerifySignatures        bool
	ExchangeTimeout         time.Duration

	HydraAdminURL       string
	ConsentTimeout      time.Duration
	LoginDefaultSubject string
	LoginRememberFor    time.Duration
	LoginUsername       string
	LoginPassword       string

	SnowflakeNode     int64
	RateLimitRPM      int
	ServiceName       string
	TelemetryEndpoint string
	TelemetryInsecure bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		Host:        getEnv("HOST", "0.0.0.0"),
		HTTPPort:    getEnv("PORT", "3030"),
		EnableTLS:   getBool("ENABLE_TLS", false),
		CertPath:    os.Getenv("CERT_PATH"),
		KeyPath:     os.Getenv("KEY_PATH"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		ShopifyAPIKey:           strings.TrimSpace(os.Getenv("API_KEY_SHOPIFY")),
		ShopifyAPISecret:        strings.TrimSpace(os.Getenv("API_SECRET_SHOPIFY")),
		ShopifyScopes:           getList("SHOPIFY_SCOPES", []string{"read_orders", "write_orders"}),
		ShopifyRedirectURI:      getEnv("SHOPIFY_REDIRECT_URI", "https://localhost:3030/shopify_confirm"),
		ShopifyAccessMode:       os.Getenv("SHOPIFY_ACCESS_MODE"),
		ShopifyAuthorizeBaseURL: os.Getenv("SHOPIFY_AUTHORIZE_BASE_URL"),
		ShopifyTokenBaseURL:     os.Getenv("SHOPIFY_TOKEN_BASE_URL"),
		InstallCompleteURL:      getEnv("INSTALL_COMPLETE_URL", "/"),
		VerifySignatures:        getBool("VERIFY_SIGNATURES", true),
		ExchangeTimeout:         getDuration("EXCHANGE_TIMEOUT", 10*time.Second),

		HydraAdminURL:       getEnv("HYDRA_ADMIN_URL", "http://127.0.0.1:4445"),
		ConsentTimeout:      getDuration("CONSENT_TIMEOUT", 10*time.Second),
		LoginDefaultSubject: os.Getenv("LOGIN_DEFAULT_SUBJECT"),
		LoginRememberFor:    getDuration("LOGIN_REMEMBER_FOR", time.Hour),
		LoginUsername:       strings.TrimSpace(os.Getenv("LOGIN_USERNAME")),
		LoginPassword:       os.Getenv("LOGIN_PASSWORD"),

		SnowflakeNode:     int64(getInt("SNOWFLAKE_NODE", 1)),
		RateLimitRPM:      getInt("RATE_LIMIT_RPM", 600),
		ServiceName:       getEnv("SERVICE_NAME", "valora-connect"),
		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ShopifyAPIKey == "" {
		return fmt.Errorf("API_KEY_SHOPIFY is required")
	}
	if c.ShopifyAPISecret == "" {
		return fmt.Errorf("API_SECRET_SHOPIFY is required")
	}

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverRedis:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of postgres, redis, memory")
	}

	if c.EnableTLS && (c.CertPath == "" || c.KeyPath == "") {
		return fmt.Errorf("CERT_PATH and KEY_PATH are required when ENABLE_TLS is set")
	}
	if (c.LoginUsername == "") != (c.LoginPassword == "") {
		return fmt.Errorf("LOGIN_USERNAME and LOGIN_PASSWORD must be set together")
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("SNOWFLAKE_NODE must be between 0 and 1023")
	}
	return nil
}

// ListenAddr is the host:port the HTTP server binds.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, c.HTTPPort)
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
