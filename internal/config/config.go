package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAppName         = "SocialPulse"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultCurrency        = "NGN"
	defaultMargin          = "0.3"
	defaultChargeMode      = "reserve"
	defaultRateTTL         = time.Hour
	defaultCancelMinAge    = 5 * time.Minute
	defaultMinDeposit      = "1000"
	defaultProviderTimeout = 20 * time.Second
	defaultMetricsPath     = "/metrics"
	defaultDBMaxConns      = 10
	defaultConnectTimeout  = 5 * time.Second
	defaultConnLifetime    = time.Hour
	devJWTSecret           = "dev-only-secret"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnLifetime time.Duration
	ConnectTimeout    time.Duration

	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	InternalToken   string

	PaystackSecretKey string
	DefaultCurrency   string
	BoostMargin       decimal.Decimal
	NumberMargin      decimal.Decimal
	BoostChargeMode   string
	RateTTL           time.Duration
	CancelMinAge      time.Duration
	MinDeposit        decimal.Decimal
	ProviderTimeout   time.Duration
	MetricsPath       string
}

// Load reads configuration values from the environment and populates a Config
// instance. A .env file in the working directory is loaded first when present;
// real environment variables win over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		ShutdownPeriod:    defaultShutdownDelay,
		IdempotencyTTL:    defaultIdempotencyTTL,
		JWTSecret:         os.Getenv("JWT_SECRET"),
		RefreshSecret:     os.Getenv("REFRESH_SECRET"),
		InternalToken:     os.Getenv("INTERNAL_TOKEN"),
		PaystackSecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		DefaultCurrency:   strings.ToUpper(getEnv("DEFAULT_CURRENCY", defaultCurrency)),
		BoostChargeMode:   strings.ToLower(getEnv("BOOST_CHARGE_MODE", defaultChargeMode)),
		MetricsPath:       getEnv("METRICS_PATH", defaultMetricsPath),
	}

	var err error
	if cfg.ShutdownPeriod, err = secondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = secondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", defaultAccessTokenTTL, &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", defaultRefreshTokenTTL, &cfg.RefreshTokenTTL},
		{"RATE_TTL", defaultRateTTL, &cfg.RateTTL},
		{"CANCEL_MIN_AGE", defaultCancelMinAge, &cfg.CancelMinAge},
		{"PROVIDER_TIMEOUT", defaultProviderTimeout, &cfg.ProviderTimeout},
		{"DB_MAX_CONN_LIFETIME", defaultConnLifetime, &cfg.DBMaxConnLifetime},
		{"CONNECT_TIMEOUT", defaultConnectTimeout, &cfg.ConnectTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.fallback); err != nil {
			return Config{}, err
		}
	}
	if cfg.DBMaxConns, err = getInt32("DB_MAX_CONNS", defaultDBMaxConns); err != nil {
		return Config{}, err
	}
	if cfg.DBMinConns, err = getInt32("DB_MIN_CONNS", 0); err != nil {
		return Config{}, err
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", cfg.DBMinConns, cfg.DBMaxConns)
	}
	decimals := []struct {
		key      string
		fallback string
		dst      *decimal.Decimal
	}{
		{"BOOST_MARGIN", defaultMargin, &cfg.BoostMargin},
		{"NUMBER_MARGIN", defaultMargin, &cfg.NumberMargin},
		{"MIN_DEPOSIT", defaultMinDeposit, &cfg.MinDeposit},
	}
	for _, d := range decimals {
		if *d.dst, err = getDecimal(d.key, d.fallback); err != nil {
			return Config{}, err
		}
	}

	if cfg.BoostChargeMode != "reserve" && cfg.BoostChargeMode != "debit" {
		return Config{}, fmt.Errorf("invalid BOOST_CHARGE_MODE %q: want reserve or debit", cfg.BoostChargeMode)
	}
	if cfg.BoostMargin.IsNegative() || cfg.NumberMargin.IsNegative() {
		return Config{}, fmt.Errorf("margins must not be negative")
	}

	if cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}
	if cfg.PaystackSecretKey == "" {
		return Config{}, fmt.Errorf("PAYSTACK_SECRET_KEY must be set")
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs with in-memory stores allowed.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func secondsOrDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return getDuration(durationKey, fallback)
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt32(key string, fallback int32) (int32, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return int32(n), nil
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	v := getEnv(key, fallback)
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
