package config

import (
	"fmt"
	"time"
)

// MinSecretLength is the minimum byte length for the HS256 shared
// secret. Shorter keys fail startup and the health probe.
const MinSecretLength = 32

type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AuthAPI   AuthAPIConfig
	Service   ServiceConfig
	AuthCache AuthCacheConfig
	Breaker   BreakerConfig
	Log       LogConfig

	// AuthFailOpen allows requests when the authorization service is
	// unreachable. Debug-time escape hatch only; fail-closed is the
	// default.
	AuthFailOpen bool
}

type ServerConfig struct {
	Host             string
	Port             int
	APIPrefix        string
	AllowedOrigins   []string
	AllowEmptyOrigin bool
	// PublicPrefixes bypass token validation entirely.
	PublicPrefixes []string
}

type MongoConfig struct {
	URL      string
	Database string
}

type RedisConfig struct {
	URL string
}

type JWTConfig struct {
	SecretKey string
	Algorithm string
}

type AuthAPIConfig struct {
	URL          string
	Timeout      time.Duration
	ServiceToken string
}

// ServiceConfig is the client-credentials identity the chat backend
// uses when calling the authorization service on its own behalf.
type ServiceConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scope        string
}

type AuthCacheConfig struct {
	Enabled   bool
	TTLRead   time.Duration
	TTLWrite  time.Duration
	TTLAdmin  time.Duration
	TTLDenied time.Duration
}

type BreakerConfig struct {
	Threshold        int
	CoolDown         time.Duration
	HalfOpenMaxCalls int
}

type LogConfig struct {
	Level string
	JSON  bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:             getEnv("HOST", "0.0.0.0"),
			Port:             getEnvInt("PORT", 8001),
			APIPrefix:        getEnv("API_PREFIX", "/api/chat"),
			AllowedOrigins:   getEnvSlice("CORS_ORIGINS", []string{"*"}),
			AllowEmptyOrigin: getEnvBool("ALLOW_EMPTY_ORIGIN", true),
			PublicPrefixes:   getEnvSlice("PUBLIC_PATH_PREFIXES", []string{"/health", "/metrics"}),
		},
		Mongo: MongoConfig{
			URL:      getEnv("MONGODB_URL", "mongodb://localhost:27017"),
			Database: getEnv("DATABASE_NAME", "chat_db"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
			Algorithm: getEnv("JWT_ALGORITHM", "HS256"),
		},
		AuthAPI: AuthAPIConfig{
			URL:          getEnv("AUTH_API_URL", "http://auth-api:8000"),
			Timeout:      getEnvSeconds("AUTH_API_TIMEOUT", 10*time.Second),
			ServiceToken: getEnv("SERVICE_AUTH_TOKEN", ""),
		},
		Service: ServiceConfig{
			ClientID:     getEnv("SERVICE_CLIENT_ID", "chat-api-service"),
			ClientSecret: getEnv("SERVICE_CLIENT_SECRET", ""),
			TokenURL:     getEnv("SERVICE_TOKEN_URL", "http://auth-api:8000/oauth/token"),
			Scope:        getEnv("SERVICE_SCOPE", "groups:read"),
		},
		AuthCache: AuthCacheConfig{
			Enabled:   getEnvBool("AUTH_CACHE_ENABLED", true),
			TTLRead:   getEnvSeconds("AUTH_CACHE_TTL_READ", 300*time.Second),
			TTLWrite:  getEnvSeconds("AUTH_CACHE_TTL_WRITE", 60*time.Second),
			TTLAdmin:  getEnvSeconds("AUTH_CACHE_TTL_ADMIN", 30*time.Second),
			TTLDenied: getEnvSeconds("AUTH_CACHE_TTL_DENIED", 120*time.Second),
		},
		Breaker: BreakerConfig{
			Threshold:        getEnvInt("CIRCUIT_BREAKER_THRESHOLD", 5),
			CoolDown:         getEnvSeconds("CIRCUIT_BREAKER_TIMEOUT", 30*time.Second),
			HalfOpenMaxCalls: getEnvInt("CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS", 3),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
			JSON:  getEnvBool("LOG_JSON_FORMAT", false),
		},
		AuthFailOpen: getEnvBool("AUTH_FAIL_OPEN", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWT.SecretKey) < MinSecretLength {
		return fmt.Errorf("JWT_SECRET_KEY must be at least %d bytes, got %d", MinSecretLength, len(c.JWT.SecretKey))
	}
	if c.JWT.Algorithm != "HS256" && c.JWT.Algorithm != "HS384" && c.JWT.Algorithm != "HS512" {
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWT.Algorithm)
	}
	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be positive, got %d", c.Breaker.Threshold)
	}
	if c.Breaker.HalfOpenMaxCalls < 1 {
		return fmt.Errorf("CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS must be positive, got %d", c.Breaker.HalfOpenMaxCalls)
	}
	return nil
}

// SecretOK reports whether the configured signing secret meets the
// minimum length. Used by the health probe.
func (c *Config) SecretOK() bool {
	return len(c.JWT.SecretKey) >= MinSecretLength
}
