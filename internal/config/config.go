package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Timeouts
	RequestTimeout  time.Duration
	ProviderTimeout time.Duration

	// Kakao
	KakaoClientID     string
	KakaoClientSecret string
	KakaoRedirectURI  string
	KakaoAdminKey     string

	// Naver
	NaverClientID     string
	NaverClientSecret string

	// Apple
	AppleClientIDs  []string
	AppleTeamID     string
	AppleKeyID      string
	ApplePrivateKey string

	// Accounts
	DefaultNickname string
	SnowflakeNode   int64

	// Server
	Port        string
	CORSOrigins string
	SentryDSN   string
	AppEnv      string

	// RedisURL enables shared rate-limit counters when set.
	RedisURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "pinplace"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "336h"), 336*time.Hour),

		RequestTimeout:  parseDuration(getEnv("REQUEST_TIMEOUT", "15s"), 15*time.Second),
		ProviderTimeout: parseDuration(getEnv("PROVIDER_TIMEOUT", "10s"), 10*time.Second),

		KakaoClientID:     getEnv("KAKAO_CLIENT_ID", ""),
		KakaoClientSecret: getEnv("KAKAO_CLIENT_SECRET", ""),
		KakaoRedirectURI:  getEnv("KAKAO_REDIRECT_URI", ""),
		KakaoAdminKey:     getEnv("KAKAO_ADMIN_KEY", ""),

		NaverClientID:     getEnv("NAVER_CLIENT_ID", ""),
		NaverClientSecret: getEnv("NAVER_CLIENT_SECRET", ""),

		AppleClientIDs:  parseCSV(getEnv("APPLE_CLIENT_IDS", "")),
		AppleTeamID:     getEnv("APPLE_TEAM_ID", ""),
		AppleKeyID:      getEnv("APPLE_KEY_ID", ""),
		ApplePrivateKey: strings.ReplaceAll(getEnv("APPLE_PRIVATE_KEY", ""), `\n`, "\n"),

		DefaultNickname: getEnv("DEFAULT_NICKNAME", "member"),
		SnowflakeNode:   parseInt(getEnv("SNOWFLAKE_NODE", "1"), 1),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		AppEnv:      getEnv("APP_ENV", "development"),

		RedisURL: getEnv("REDIS_URL", ""),
	}
}

// minJWTSecretBytes matches the HS256 output size.
const minJWTSecretBytes = 32

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < minJWTSecretBytes {
		return errors.New("JWT_SECRET must be at least 32 bytes")
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.JWTRefreshExpiry <= c.JWTAccessExpiry {
		return errors.New("JWT_REFRESH_EXPIRY must be longer than JWT_ACCESS_EXPIRY")
	}
	return nil
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int64) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
