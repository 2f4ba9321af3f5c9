package util

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

//nolint:gochecknoglobals // here its ok
var once sync.Once

func init() {
	once.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	})
}

const (
	defaultServerAddr      = "localhost:8080"
	defaultWriteTimeout    = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	defaultRateWindow   = 1 * time.Minute
	defaultIPLimit      = 100
	defaultUserLimit    = 200
	defaultLoginLimit   = 5
	defaultStoreTimeout = 500 * time.Millisecond

	defaultMaxFailedLogins = 5
	defaultLockoutDuration = 15 * time.Minute

	defaultCleanupInterval = 1 * time.Hour

	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5

	RawTokenLength = 32
	JWTLeeway      = 5 * time.Second
)

type ServerConfig struct {
	ServerAddr      string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
}

func NewServerConfig() *ServerConfig {
	addr := os.Getenv("SERVER_ADDRESS")
	if addr == "" {
		addr = defaultServerAddr
	}

	return &ServerConfig{
		ServerAddr:      addr,
		WriteTimeout:    parseDurationOrDefault("WRITE_TIMEOUT", defaultWriteTimeout),
		ReadTimeout:     parseDurationOrDefault("READ_TIMEOUT", defaultReadTimeout),
		IdleTimeout:     parseDurationOrDefault("IDLE_TIMEOUT", defaultIdleTimeout),
		GracefulTimeout: parseDurationOrDefault("GRACEFUL_TIMEOUT", defaultGracefulTimeout),
	}
}

type TokenConfig struct {
	JwtSecretKey []byte
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

func NewTokenConfig() *TokenConfig {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	return &TokenConfig{
		JwtSecretKey: []byte(secret),
		AccessTTL:    parseDurationOrDefault("ACCESS_TOKEN_TTL", defaultAccessTTL),
		RefreshTTL:   parseDurationOrDefault("REFRESH_TOKEN_TTL", defaultRefreshTTL),
	}
}

// RateLimiterConfig carries the fixed-window ceilings per bucket kind:
// the strict login ceiling keyed by IP, the loose ceiling keyed by
// authenticated user, and the default ceiling keyed by IP.
type RateLimiterConfig struct {
	Window       time.Duration
	IPLimit      int
	UserLimit    int
	LoginLimit   int
	LoginPath    string
	StoreTimeout time.Duration
}

func NewRateLimiterConfig() *RateLimiterConfig {
	loginPath := os.Getenv("RATE_LIMIT_LOGIN_PATH")
	if loginPath == "" {
		loginPath = "/api/auth/login"
	}

	return &RateLimiterConfig{
		Window:       parseDurationOrDefault("RATE_LIMIT_WINDOW", defaultRateWindow),
		IPLimit:      parseIntOrDefault("RATE_LIMIT_IP", defaultIPLimit),
		UserLimit:    parseIntOrDefault("RATE_LIMIT_USER", defaultUserLimit),
		LoginLimit:   parseIntOrDefault("RATE_LIMIT_LOGIN", defaultLoginLimit),
		LoginPath:    loginPath,
		StoreTimeout: parseDurationOrDefault("RATE_LIMIT_STORE_TIMEOUT", defaultStoreTimeout),
	}
}

type LockoutConfig struct {
	MaxFailedLogins int
	LockoutDuration time.Duration
}

func NewLockoutConfig() *LockoutConfig {
	return &LockoutConfig{
		MaxFailedLogins: parseIntOrDefault("MAX_FAILED_LOGINS", defaultMaxFailedLogins),
		LockoutDuration: parseDurationOrDefault("LOCKOUT_DURATION", defaultLockoutDuration),
	}
}

type CleanupConfig struct {
	Interval time.Duration
}

func NewCleanupConfig() *CleanupConfig {
	return &CleanupConfig{
		Interval: parseDurationOrDefault("TOKEN_CLEANUP_INTERVAL", defaultCleanupInterval),
	}
}

// NewUpstreams parses UPSTREAMS, e.g.
// "/api/movies=http://movie-service:8081,/api/customers=http://customer-service:8082".
// Requests matching a prefix are reverse-proxied to the paired base URL.
func NewUpstreams() map[string]string {
	upstreams := make(map[string]string)
	raw := os.Getenv("UPSTREAMS")
	if raw == "" {
		return upstreams
	}

	for _, pair := range strings.Split(raw, ",") {
		prefix, target, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || prefix == "" || target == "" {
			log.Printf("Invalid UPSTREAMS entry: %q, skipping", pair)
			continue
		}
		upstreams[prefix] = target
	}

	return upstreams
}

func GetWebhookURL() string {
	return os.Getenv("SECURITY_WEBHOOK_URL")
}

func parseDurationOrDefault(varName string, def time.Duration) time.Duration {
	if v := os.Getenv(varName); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Invalid duration in %s: %s, using default %s", varName, v, def)
	}
	return def
}

func parseIntOrDefault(varName string, def int) int {
	if v := os.Getenv(varName); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Invalid integer in %s: %s, using default %d", varName, v, def)
	}
	return def
}
