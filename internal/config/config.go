package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	DB struct {
		DSN string
	}

	// OIDC settings for dashboard sign-in.
	OIDC struct {
		ClientID     string
		ClientSecret string
		IssuerURL    string
		RedirectPath string
	}

	// Marketplace holds the upstream seller API application credentials.
	Marketplace struct {
		BaseURL     string
		AppKey      string
		AppSecret   string
		RedirectURL string
	}

	Session struct {
		Secret string
	}

	Sync struct {
		// AccountCacheTTL bounds how long the per-user account list is
		// served from memory before re-reading the store.
		AccountCacheTTL time.Duration
		// DayRequestDelay throttles consecutive per-day report calls.
		DayRequestDelay time.Duration
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	cfg.BaseURL = getenvDefault("APP_BASE_URL", "http://localhost:8080")
	cfg.DB.DSN = os.Getenv("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" && password != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.OIDC.ClientID = os.Getenv("APP_OIDC_CLIENT_ID")
	cfg.OIDC.ClientSecret = os.Getenv("APP_OIDC_CLIENT_SECRET")
	cfg.OIDC.IssuerURL = os.Getenv("APP_OIDC_ISSUER_URL")
	cfg.OIDC.RedirectPath = getenvDefault("APP_OIDC_REDIRECT_PATH", "/auth/callback")

	cfg.Marketplace.BaseURL = getenvDefault("APP_MARKETPLACE_BASE_URL", "https://api.marketplace.example.com")
	cfg.Marketplace.AppKey = os.Getenv("APP_MARKETPLACE_APP_KEY")
	cfg.Marketplace.AppSecret = os.Getenv("APP_MARKETPLACE_APP_SECRET")
	cfg.Marketplace.RedirectURL = getenvDefault("APP_MARKETPLACE_REDIRECT_URL", cfg.BaseURL+"/api/accounts/link")

	cfg.Session.Secret = os.Getenv("APP_SESSION_SECRET")
	cfg.Sync.AccountCacheTTL = getenvDuration("APP_SYNC_ACCOUNT_CACHE_TTL", 5*time.Minute)
	cfg.Sync.DayRequestDelay = getenvDuration("APP_SYNC_DAY_REQUEST_DELAY", 300*time.Millisecond)
	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	if cfg.DB.DSN == "" {
		return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if cfg.OIDC.ClientID == "" || cfg.OIDC.ClientSecret == "" {
		return nil, errors.New("oidc configuration is required: client id and secret")
	}
	if cfg.OIDC.IssuerURL == "" {
		return nil, errors.New("APP_OIDC_ISSUER_URL is required")
	}
	if cfg.Marketplace.AppKey == "" || cfg.Marketplace.AppSecret == "" {
		return nil, errors.New("marketplace configuration is required: APP_MARKETPLACE_APP_KEY and APP_MARKETPLACE_APP_SECRET")
	}
	if cfg.Session.Secret == "" {
		return nil, errors.New("APP_SESSION_SECRET is required")
	}
	if len(cfg.Session.Secret) < 32 {
		return nil, fmt.Errorf("APP_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.Session.Secret))
	}

	if len(cfg.TrustedProxies) == 0 {
		fmt.Println("WARNING: No APP_TRUSTED_PROXIES configured. SellerPulse will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
