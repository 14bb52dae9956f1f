package router

import (
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/config"
	"github.com/manodhiambo/carwash-pos-sub000/internal/handler"
	"github.com/manodhiambo/carwash-pos-sub000/internal/infra"
	"github.com/manodhiambo/carwash-pos-sub000/internal/metrics"
	"github.com/manodhiambo/carwash-pos-sub000/internal/middleware"
	"github.com/manodhiambo/carwash-pos-sub000/internal/service"
	"github.com/manodhiambo/carwash-pos-sub000/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the long-lived components built by main and shared with the
// worker pool.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Breaker  *infra.CircuitBreaker
	Metrics  *metrics.Metrics
	Services Services
	Queue    handler.CallbackQueue
}

// Services is the engine's service layer.
type Services struct {
	Jobs     service.JobService
	Bays     service.BayService
	Payments service.PaymentService
	Sessions service.CashSessionService
	Mpesa    service.MpesaService
	Pricing  service.PricingService
}

// NewServices wires every service onto the same repositories and options.
func NewServices(db *gorm.DB, rdb *redis.Client, gateway service.MpesaGateway, cb *infra.CircuitBreaker, cfg *config.Config, m *metrics.Metrics) Services {
	repos := service.NewRepos(db)
	opts := service.Options{
		JobNumberPrefix: cfg.JobNumberPrefix,
		LoyaltyRate:     cfg.LoyaltyPointsPer100,
		Location:        cfg.Location(),
		Metrics:         m,
	}
	pricing := service.NewPricingService(repos.Catalog, rdb, cfg.PriceCacheTTL)
	return Services{
		Jobs:     service.NewJobService(repos, pricing, opts),
		Bays:     service.NewBayService(repos, opts),
		Payments: service.NewPaymentService(repos, opts),
		Sessions: service.NewCashSessionService(repos, opts),
		Mpesa:    service.NewMpesaService(repos, gateway, cb, opts),
		Pricing:  pricing,
	}
}

// New returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())

	// ── Handlers ─────────────────────────────────────────────────────────────
	jobsH := handler.NewJobsHandler(d.Services.Jobs, d.Services.Bays, d.Services.Payments)
	baysH := handler.NewBaysHandler(d.Services.Bays)
	paymentsH := handler.NewPaymentsHandler(d.Services.Payments)
	mpesaH := handler.NewMpesaHandler(d.Services.Mpesa, d.Queue)
	sessionsH := handler.NewCashSessionsHandler(d.Services.Sessions)
	pricesH := handler.NewPricesHandler(d.Services.Pricing)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(d.DB, d.Redis, d.Breaker))
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// Gateway callback: no operator token, the gateway cannot carry one
	r.POST("/v1/mpesa/callback", middleware.CallbackRateLimiter(600), mpesaH.Callback)

	staff := []string{middleware.RoleAttendant, middleware.RoleCashier, middleware.RoleSupervisor, middleware.RoleManager}
	cashiers := []string{middleware.RoleCashier, middleware.RoleSupervisor, middleware.RoleManager}
	supervisors := []string{middleware.RoleSupervisor, middleware.RoleManager}

	// Protected routes
	v1 := r.Group("/v1", middleware.RateLimiter(1000, time.Minute), middleware.JWTAuth(cfg.JWTSecret))
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", middleware.RequireRole(staff...), jobsH.CheckIn)
			jobs.GET("", middleware.RequireRole(staff...), jobsH.List)
			jobs.GET("/by-number/:number", middleware.RequireRole(staff...), jobsH.GetByNumber)
			jobs.GET("/:id", middleware.RequireRole(staff...), jobsH.Get)
			jobs.PATCH("/:id/status", middleware.RequireRole(staff...), jobsH.UpdateStatus)
			jobs.POST("/:id/services", middleware.RequireRole(staff...), jobsH.AddService)
			jobs.POST("/:id/bay", middleware.RequireRole(staff...), jobsH.AssignBay)
			jobs.PATCH("/:id/staff", middleware.RequireRole(supervisors...), jobsH.AssignStaff)
			jobs.POST("/:id/discount", middleware.RequireRole(supervisors...), jobsH.ApplyDiscount)
			jobs.GET("/:id/payments", middleware.RequireRole(cashiers...), jobsH.Payments)
			jobs.GET("/:id/balance", middleware.RequireRole(staff...), jobsH.Balance)
		}

		v1.GET("/bays", middleware.RequireRole(staff...), baysH.List)
		v1.POST("/bays/:id/release", middleware.RequireRole(staff...), baysH.Release)
		bays := v1.Group("/bays", middleware.RequireRole(middleware.RoleManager))
		{
			bays.POST("", baysH.Create)
			bays.PUT("/:id", baysH.Update)
			bays.DELETE("/:id", baysH.Deactivate)
		}

		v1.GET("/services/:id/price", middleware.RequireRole(staff...), pricesH.Quote)

		payments := v1.Group("/payments")
		{
			payments.POST("", middleware.RequireRole(cashiers...), paymentsH.Record)
			payments.POST("/:id/refund", middleware.RequireRole(supervisors...), paymentsH.Refund)
			payments.POST("/mpesa/stk-push", middleware.RequireRole(cashiers...), mpesaH.STKPush)
			payments.GET("/mpesa/:checkout_id", middleware.RequireRole(cashiers...), mpesaH.Status)
		}

		sessions := v1.Group("/cash-sessions", middleware.RequireRole(cashiers...))
		{
			sessions.POST("/open", sessionsH.Open)
			sessions.POST("/:id/close", sessionsH.Close)
			sessions.GET("/current", sessionsH.Current)
			sessions.GET("/:id", sessionsH.Get)
			sessions.GET("", middleware.RequireRole(supervisors...), sessionsH.History)
		}

		v1.POST("/expenses", middleware.RequireRole(cashiers...), sessionsH.RecordExpense)
		v1.POST("/customers/:id/loyalty/redeem", middleware.RequireRole(cashiers...), paymentsH.RedeemPoints)

		if d.Redis != nil {
			dlqH := handler.NewDLQHandler(d.Redis)
			admin := v1.Group("/admin", middleware.RequireRole(middleware.RoleManager))
			{
				admin.GET("/dlq/mpesa-callbacks", dlqH.Peek)
				admin.POST("/dlq/mpesa-callbacks/replay", dlqH.Replay)
			}
		}
	}

	// Swagger UI, only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}

// compile-time check that the worker dispatcher satisfies the handler queue
var _ handler.CallbackQueue = (*worker.Dispatcher)(nil)
