package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"ridecore/internal/handler"
	"ridecore/internal/metrics"
	"ridecore/internal/middleware"
	"ridecore/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler         *handler.RideHandler
	DriverHandler       *handler.DriverHandler
	WalletHandler       *handler.WalletHandler
	PaymentHandler      *handler.PaymentHandler
	VerificationHandler *handler.VerificationHandler
	SettingsHandler     *handler.SettingsHandler
	ConnectivityHandler *handler.ConnectivityHandler
	AdminHandler        *handler.AdminHandler
	ResponseCache       redis.ResponseCacheInterface
	NewRelicApp         *newrelic.Application
	AdminToken          string
	Log                 logrus.FieldLogger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware(deps.Log))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// The webhook carries its own signature and must not be replayed from cache.
	router.POST("/v1/payments/webhooks/stripe", deps.PaymentHandler.StripeWebhook)

	v1 := router.Group("/v1")
	v1.Use(middleware.IdempotencyMiddleware(deps.ResponseCache, deps.Log))
	{
		v1.GET("/health/connectivity", deps.ConnectivityHandler.State)
		v1.POST("/health/connectivity/recheck", deps.ConnectivityHandler.Recheck)
		v1.POST("/payments/preferences", deps.PaymentHandler.CreatePreference)
		v1.GET("/settings/schedule", deps.SettingsHandler.GetSchedule)

		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.POST("/:id/assign", deps.RideHandler.AssignDriver)
			rides.POST("/:id/arriving", deps.RideHandler.MarkArriving)
			rides.POST("/:id/arrived", deps.RideHandler.MarkArrived)
			rides.POST("/:id/start", deps.RideHandler.StartRide)
			rides.POST("/:id/complete", deps.RideHandler.CompleteRide)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
		}

		drivers := v1.Group("/drivers")
		{
			drivers.POST("", deps.DriverHandler.Register)
			drivers.GET("", deps.DriverHandler.GetAll)
			drivers.GET("/:id", deps.DriverHandler.GetDriver)
			drivers.PUT("/:id/availability", deps.DriverHandler.SetAvailability)
			drivers.GET("/:id/active-ride", deps.DriverHandler.GetActiveRide)
		}

		wallets := v1.Group("/wallets")
		{
			wallets.GET("/:user_id", deps.WalletHandler.GetWallet)
			wallets.GET("/:user_id/history", deps.WalletHandler.History)
			wallets.POST("/:user_id/withdrawals", deps.WalletHandler.RequestWithdrawal)
		}

		verifications := v1.Group("/verification-requests")
		{
			verifications.POST("", deps.VerificationHandler.Create)
			verifications.GET("/:id", deps.VerificationHandler.Get)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(deps.AdminToken))
		{
			admin.POST("/rides/:id/cancel", deps.RideHandler.AdminCancelRide)
			admin.POST("/rides/:id/settle", deps.AdminHandler.SettleRide)
			admin.POST("/wallets/:user_id/adjustments", deps.AdminHandler.Adjust)
			admin.POST("/withdrawals/:id/complete", deps.AdminHandler.CompleteWithdrawal)
			admin.POST("/withdrawals/:id/reject", deps.AdminHandler.RejectWithdrawal)
			admin.GET("/reconciliation", deps.AdminHandler.ListReconciliation)
			admin.POST("/reconciliation/:id/resolve", deps.AdminHandler.ResolveReconciliation)
			admin.POST("/ledger/audit", deps.AdminHandler.RunAudit)
			admin.POST("/settlements/redrive", deps.AdminHandler.RedriveSettlements)
			admin.POST("/verification-requests/:id/resolve", deps.VerificationHandler.Resolve)
			admin.PUT("/settings/schedule", deps.SettingsHandler.PutSchedule)
		}
	}

	return router
}
