package config

import (
	"testing"
	"time"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultCurrency != "NGN" {
		t.Fatalf("expected NGN, got %s", cfg.DefaultCurrency)
	}
	if cfg.BoostMargin.String() != "0.3" || cfg.MinDeposit.String() != "1000" {
		t.Fatalf("unexpected money defaults: margin %s min %s", cfg.BoostMargin, cfg.MinDeposit)
	}
	if cfg.CancelMinAge != 5*time.Minute || cfg.RateTTL != time.Hour {
		t.Fatalf("unexpected durations: cancel %s rate %s", cfg.CancelMinAge, cfg.RateTTL)
	}
	if cfg.JWTSecret == "" {
		t.Fatalf("expected a development JWT secret")
	}
}

func TestLoadProductionRequiresStores(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	if _, err := Load(); err == nil {
		t.Fatalf("expected missing DATABASE_URL error")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	t.Setenv("BOOST_CHARGE_MODE", "later")
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid charge mode error")
	}
	t.Setenv("BOOST_CHARGE_MODE", "debit")

	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid shutdown timeout error")
	}
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownPeriod != 3*time.Second || cfg.BoostChargeMode != "debit" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadPoolSettings(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("DB_MIN_CONNS", "2")
	t.Setenv("CONNECT_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 2 || cfg.ConnectTimeout != 3*time.Second {
		t.Fatalf("unexpected pool settings: max %d min %d timeout %s", cfg.DBMaxConns, cfg.DBMinConns, cfg.ConnectTimeout)
	}

	t.Setenv("DB_MIN_CONNS", "30")
	if _, err := Load(); err == nil {
		t.Fatalf("expected min > max error")
	}
	t.Setenv("DB_MIN_CONNS", "-1")
	if _, err := Load(); err == nil {
		t.Fatalf("expected negative value error")
	}
}
