package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/auth"
	"github.com/socialpulse/socialpulse/internal/boost"
	"github.com/socialpulse/socialpulse/internal/config"
	"github.com/socialpulse/socialpulse/internal/deposits"
	"github.com/socialpulse/socialpulse/internal/identity"
	"github.com/socialpulse/socialpulse/internal/ledger"
	"github.com/socialpulse/socialpulse/internal/metrics"
	"github.com/socialpulse/socialpulse/internal/middleware"
	"github.com/socialpulse/socialpulse/internal/money"
	"github.com/socialpulse/socialpulse/internal/notification"
	"github.com/socialpulse/socialpulse/internal/numbers"
	"github.com/socialpulse/socialpulse/internal/orders"
	"github.com/socialpulse/socialpulse/internal/provider"
	"github.com/socialpulse/socialpulse/internal/reconcile"
	"github.com/socialpulse/socialpulse/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
	// Gateways overrides the provider gateways; sandboxes are used when nil.
	Gateways *provider.Registry
	// Rates overrides the exchange rate source.
	Rates money.RateSource
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	m := metrics.New(d.Registry)

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Metrics(m))
	app.Use(middleware.Audit(d.Logger, "/healthz", d.Cfg.MetricsPath))

	RegisterHealthRoutes(app, d)
	app.Get(d.Cfg.MetricsPath, adaptor.HTTPHandler(metrics.Handler(d.Registry)))

	// Stores
	var (
		walletStore  ledger.Store
		orderRepo    orders.Repository
		identityRepo identity.Repository
		rateCache    money.RateCache
	)
	if d.DB != nil {
		walletStore = ledger.NewPostgresStore(d.DB)
		orderRepo = orders.NewPostgresRepository(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		walletStore = ledger.NewMemoryStore()
		orderRepo = orders.NewMemoryRepository()
		identityRepo = identity.NewMemoryRepository()
	}
	if d.Cache != nil {
		rateCache = money.NewRedisRateCache(d.Cache)
	}

	// Services
	gateways := d.Gateways
	if gateways == nil {
		gateways = sandboxGateways(d.Cfg.ProviderTimeout)
	}
	rates := d.Rates
	if rates == nil {
		rates = sandboxRates()
	}
	led := ledger.New(walletStore, d.Logger, m)
	converter := money.NewConverter(rates, rateCache, d.Cfg.RateTTL, d.Logger, m)
	pricer := money.NewPricer(converter)
	notifier := notification.NewLoggerNotifier(d.Logger)

	walletSvc := wallet.NewService(led, d.Cfg.DefaultCurrency)
	identitySvc := identity.NewService(identityRepo, walletSvc)
	authSvc := auth.NewService(auth.Options{
		AccessSecret:  d.Cfg.JWTSecret,
		RefreshSecret: d.Cfg.RefreshSecret,
		AccessTTL:     d.Cfg.AccessTokenTTL,
		RefreshTTL:    d.Cfg.RefreshTokenTTL,
	}, identityRepo)

	ordersSvc := orders.NewService(orderRepo, led, gateways, orders.Options{
		CancelMinAge: d.Cfg.CancelMinAge,
		Notifier:     notifier,
		Logger:       d.Logger,
		Metrics:      m,
	})
	engine := reconcile.NewEngine(ordersSvc, converter, d.Cfg.PaystackSecretKey, d.Logger, m)

	boostGateway, err := ordersSvc.Gateway(orders.KindBoost)
	if err != nil {
		return err
	}
	numberGateway, err := ordersSvc.Gateway(orders.KindNumber)
	if err != nil {
		return err
	}
	boostSvc := boost.NewService(ordersSvc, boostGateway, pricer, led, d.Cfg.BoostMargin, orders.ChargeMode(d.Cfg.BoostChargeMode))
	numberSvc := numbers.NewService(ordersSvc, numberGateway, pricer, led, engine, d.Cfg.NumberMargin)
	depositSvc := deposits.NewService(ordersSvc, led, converter, engine, d.Cfg.MinDeposit, d.Cfg.DefaultCurrency)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes are registered before the protected group so its
	// middleware never runs for them.
	jwtmw := middleware.JWTAuth(authSvc)
	identityHandler := identity.NewHandler(identitySvc)
	RegisterIdentityRoutes(api, identityHandler)
	RegisterAuthRoutes(api, auth.NewHandler(identitySvc, authSvc), middleware.LoginRateLimit(d.Cache, 5), jwtmw)
	RegisterReconcileRoutes(app, api, reconcile.NewHandler(engine, ordersSvc),
		middleware.InternalOrJWT(d.Cfg.InternalToken, jwtmw),
		middleware.ReconcileRateLimit(d.Cache, 10))

	// Protected routes
	protected := api.Group("", jwtmw)
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterProfileRoutes(protected, identityHandler)
	RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc))
	RegisterOrderRoutes(protected, orders.NewHandler(ordersSvc))
	RegisterBoostRoutes(protected, boost.NewHandler(boostSvc, engine))
	RegisterDepositRoutes(protected, deposits.NewHandler(depositSvc))
	RegisterNumberRoutes(protected, numbers.NewHandler(numberSvc))

	return nil
}

// sandboxGateways registers deterministic gateways for every order kind. A
// per-process seed keeps external ids unique across restarts.
func sandboxGateways(timeout time.Duration) *provider.Registry {
	seed := uuid.NewString()[:8] + "-"
	usd := func(s string) money.Price {
		return money.Price{Amount: decimal.RequireFromString(s), Currency: "USD"}
	}

	reg := provider.NewRegistry()
	reg.Register(string(orders.KindBoost), provider.WithTimeout(&provider.Sandbox{
		Prefix:      "smm-",
		Seed:        seed,
		Default:     usd("1.20"),
		PerThousand: true,
		Offerings: []provider.Offering{
			{ID: "101", Name: "Instagram Followers", Category: "instagram", Price: usd("1.20"), Min: 100, Max: 10000},
			{ID: "102", Name: "Instagram Likes", Category: "instagram", Price: usd("0.80"), Min: 50, Max: 50000},
			{ID: "201", Name: "TikTok Views", Category: "tiktok", Price: usd("0.30"), Min: 100, Max: 1000000},
			{ID: "301", Name: "YouTube Views", Category: "youtube", Price: usd("2.10"), Min: 500, Max: 100000},
		},
	}, timeout))
	reg.Register(string(orders.KindNumber), provider.WithTimeout(&provider.Sandbox{
		Prefix:  "act-",
		Seed:    seed,
		Default: usd("0.50"),
		Offerings: []provider.Offering{
			{ID: "ng-wa", Name: "Nigeria WhatsApp", Category: "whatsapp", Country: "NG", Price: usd("0.50"), Stock: 120},
			{ID: "ng-tg", Name: "Nigeria Telegram", Category: "telegram", Country: "NG", Price: usd("0.40"), Stock: 80},
			{ID: "gh-wa", Name: "Ghana WhatsApp", Category: "whatsapp", Country: "GH", Price: usd("0.65"), Stock: 25},
		},
	}, timeout))
	reg.Register(string(orders.KindDeposit), provider.WithTimeout(&provider.Sandbox{
		Prefix:      "PSK_",
		Seed:        seed,
		CheckoutURL: "https://checkout.paystack.com/",
	}, timeout))
	return reg
}

func sandboxRates() money.StaticRates {
	return money.StaticRates{
		"USD": {"NGN": decimal.RequireFromString("1550"), "GHS": decimal.RequireFromString("15.5"), "KES": decimal.RequireFromString("129")},
		"NGN": {"USD": decimal.RequireFromString("0.000645")},
	}
}
