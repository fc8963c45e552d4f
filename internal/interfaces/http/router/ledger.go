package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/yieldvault/backend/internal/infrastructure/auth"
	"github.com/yieldvault/backend/internal/infrastructure/config"
	"github.com/yieldvault/backend/internal/infrastructure/logger"
	"github.com/yieldvault/backend/internal/interfaces/http/handler"
	"github.com/yieldvault/backend/internal/interfaces/http/middleware"
)

// Dependencies are the collaborators of the ledger API engine
type Dependencies struct {
	HTTP           config.HTTPConfig
	Logger         *zap.Logger
	Tokens         middleware.TokenValidator
	ServiceName    string
	TracingEnabled bool
	// Meter records HTTP metrics when set
	Meter metric.Meter
	// MetricsHandler serves GET /metrics when set
	MetricsHandler http.Handler
	// WriteLimiter caps deposits and withdrawals per token when set
	WriteLimiter *middleware.RateLimiter

	Vaults   *handler.VaultHandler
	Accounts *handler.AccountHandler
	Clients  *handler.ClientHandler
	Health   *handler.HealthHandler
}

// NewEngine builds the gin engine with the middleware chain and every ledger route
func NewEngine(d Dependencies) (*gin.Engine, error) {
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(d.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		middleware.TracingWithConfig(middleware.TracingConfig{ServiceName: d.ServiceName, Enabled: d.TracingEnabled}),
		logger.GinMiddleware(d.Logger),
		logger.Recovery(d.Logger),
		middleware.SpanErrorMarker(),
	)
	if d.Meter != nil {
		engine.Use(middleware.HTTPMetrics(d.Meter, d.Logger))
	}

	engine.GET("/health", d.Health.Health)
	if d.MetricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	jwtCfg := middleware.DefaultJWTConfig(d.Tokens)
	jwtCfg.Logger = d.Logger

	r := NewRouter(engine, WithMiddleware(
		middleware.BodyLimit(d.HTTP.MaxBodySize),
		middleware.JWTAuthMiddlewareWithConfig(jwtCfg),
		middleware.TracingAttributeInjector(),
	))
	r.Register(vaultRoutes(d.Vaults)).
		Register(accountRoutes(d.Accounts, d.WriteLimiter)).
		Register(clientRoutes(d.Accounts, d.Clients)).
		Register(operationRoutes(d.Vaults))
	r.Setup()

	return engine, nil
}

func vaultRoutes(h *handler.VaultHandler) *DomainGroup {
	read := middleware.RequireScope(auth.ScopeRead)
	admin := middleware.RequireScope(auth.ScopeAdmin)

	return NewDomainGroup("vaults", "/vaults").
		POST("", admin, h.Create).
		GET("", read, h.List).
		GET("/:id", read, h.Get).
		POST("/:id/confirm-stake", admin, h.ConfirmStake).
		POST("/:id/deactivate", admin, h.Deactivate).
		POST("/:id/reconcile", admin, h.Reconcile).
		POST("/:id/distributions", admin, h.Distribute).
		GET("/:id/distributions", read, h.ListDistributions)
}

func accountRoutes(h *handler.AccountHandler, limiter *middleware.RateLimiter) *DomainGroup {
	return NewDomainGroup("accounts", "/accounts").
		Use(middleware.RequireScope(auth.ScopeWrite), middleware.RateLimit(limiter, middleware.TokenRateLimitKey)).
		POST("/deposit", h.Deposit).
		POST("/withdraw", h.Withdraw)
}

func clientRoutes(accounts *handler.AccountHandler, h *handler.ClientHandler) *DomainGroup {
	return NewDomainGroup("clients", "/clients/:clientId").
		Use(middleware.RequireScope(auth.ScopeRead), middleware.RequireClientParam("clientId")).
		GET("/users/:userId/position", accounts.GetPosition).
		GET("/growth-index", h.GrowthIndex).
		GET("/apy", h.APY).
		GET("/mrr", h.MRR)
}

// operationRoutes are platform-wide runs that only unbound admin tokens reach
func operationRoutes(h *handler.VaultHandler) *DomainGroup {
	return NewDomainGroup("operations", "").
		Use(middleware.RequireScope(auth.ScopeAdmin)).
		POST("/reconcile", h.ReconcileAll).
		GET("/revenue/mrr", h.BatchMRR)
}
