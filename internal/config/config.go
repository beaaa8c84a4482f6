// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment は実行環境を表す。
// 旧実装では環境ごとに認証設定オブジェクトが重複定義されていたが、
// 本実装では単一の設定をこのenumとケーパビリティフラグでパラメータ化する。
type Environment string

const (
	// EnvDevelopment は開発環境。
	EnvDevelopment Environment = "development"
	// EnvProduction は本番環境。
	EnvProduction Environment = "production"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	Environment Environment

	// SkipGoogleAuth が真の場合、Google OAuthの代わりに
	// 任意のメールアドレスでログインできる開発用プロバイダーを使用する。
	SkipGoogleAuth bool

	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Trial
	TrialDays int

	// Client cache
	CacheTTL time.Duration

	// Link preview
	PreviewTimeout time.Duration
	PreviewMaxSize int64

	// Rate Limit
	RateLimitGeneral    int
	RateLimitCardCreate int

	// Trial expiry worker
	TrialSweepInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// SKIP_GOOGLE_AUTH=true の場合、Google OAuth関連の環境変数は必須ではない。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Environment = parseEnvironment(os.Getenv("ENVIRONMENT"))
	cfg.SkipGoogleAuth = os.Getenv("SKIP_GOOGLE_AUTH") == "true"

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	// OAuth資格情報は開発用プロバイダー使用時には不要
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if !cfg.SkipGoogleAuth {
		if cfg.GoogleClientID == "" {
			missing = append(missing, "GOOGLE_CLIENT_ID")
		}
		if cfg.GoogleClientSecret == "" {
			missing = append(missing, "GOOGLE_CLIENT_SECRET")
		}
		if cfg.GoogleRedirectURL == "" {
			missing = append(missing, "GOOGLE_REDIRECT_URL")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 2592000) // 30日
	cfg.TrialDays = getEnvInt("TRIAL_DAYS", 7)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 30*time.Second)
	cfg.PreviewTimeout = getEnvDuration("PREVIEW_TIMEOUT", 5*time.Second)
	cfg.PreviewMaxSize = getEnvInt64("PREVIEW_MAX_SIZE", 2097152)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCardCreate = getEnvInt("RATE_LIMIT_CARD_CREATE", 10)
	cfg.TrialSweepInterval = getEnvDuration("TRIAL_SWEEP_INTERVAL", 1*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// parseEnvironment はENVIRONMENT環境変数をパースする。
// 未設定またはサポート外の値の場合はdevelopmentを返す。
func parseEnvironment(v string) Environment {
	switch v {
	case string(EnvProduction):
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
