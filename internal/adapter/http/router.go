package http

import (
	"time"

	"p2p-lending-backend/internal/adapter/middleware"
	"p2p-lending-backend/internal/auth"
	"p2p-lending-backend/internal/infrastructure/metrics"
	"p2p-lending-backend/internal/usecase/investment"
	"p2p-lending-backend/internal/usecase/loan"
	"p2p-lending-backend/internal/usecase/notification"
	"p2p-lending-backend/internal/usecase/payment"
	"p2p-lending-backend/internal/usecase/user"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
)

type Deps struct {
	Loans         *loan.Usecase
	Investments   *investment.Usecase
	Payments      *payment.Usecase
	Users         *user.Usecase
	Notifications *notification.Usecase

	JWT      *auth.JWTManager
	Redis    *redis.Client
	IdempTTL time.Duration
	Metrics  *metrics.Metrics
	MaxAwait time.Duration
	// pinged by /health
	Checks []Check
}

// NewRouter wires every route. Paths are matched with or without a trailing slash.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler

	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(
		echomw.Recover(),
		echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}),
		middleware.RequestLogger(),
		middleware.Metrics(d.Metrics),
		echomw.CORS(),
	)

	base := NewHandler(d.Checks...)
	loans := NewLoanHandler(d.Loans)
	invest := NewInvestmentHandler(d.Investments)
	pay := NewPaymentHandler(d.Payments, d.MaxAwait)
	acct := NewAccountHandler(d.Users, d.Notifications)

	e.GET("/health", base.Health)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}
	// provider webhook, unauthenticated
	e.POST("/api/payments/mpesa/callback", pay.MpesaCallback)

	api := e.Group("/api", middleware.JWTAuth(d.JWT))
	idem := middleware.Idempotency(d.Redis, d.IdempTTL)
	lenders := middleware.RequireRole(auth.RoleLender, auth.RoleAdmin)
	admins := middleware.RequireRole(auth.RoleAdmin)

	api.GET("/loans", loans.Search)
	api.POST("/loans", loans.Apply, middleware.RequireRole(auth.RoleBorrower))
	api.GET("/loans/:loan_id", loans.Get)
	api.POST("/loans/:loan_id/invest", invest.Invest, lenders, idem)

	api.GET("/transactions", pay.ListTransactions)
	api.GET("/transactions/review", pay.ReviewQueue, admins)
	api.POST("/transactions/initiate_mpesa_payment", pay.InitiateMpesa, idem)
	api.GET("/transactions/check_payment_status/:transaction_id", pay.CheckStatus)
	api.GET("/transactions/await_payment/:transaction_id", pay.AwaitPayment)
	api.GET("/transactions/:transaction_id", pay.GetTransaction)
	api.POST("/transactions/:transaction_id/confirm_bank_transfer", invest.ConfirmBankTransfer, admins)

	api.GET("/users/me", acct.Me)
	api.PUT("/users/me", acct.SaveProfile)
	api.GET("/users/me/loans", loans.Mine, middleware.RequireRole(auth.RoleBorrower))
	api.GET("/users/me/investments", acct.MyInvestments)
	api.GET("/notifications", acct.Notifications)
	api.POST("/notifications/:notification_id/read", acct.MarkNotificationRead)

	return e
}
