package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadp "p2p-lending-backend/internal/adapter/http"
	"p2p-lending-backend/internal/adapter/repository/mysql"
	"p2p-lending-backend/internal/auth"
	"p2p-lending-backend/internal/config"
	"p2p-lending-backend/internal/domain/event"
	"p2p-lending-backend/internal/infrastructure/cache"
	"p2p-lending-backend/internal/infrastructure/db"
	"p2p-lending-backend/internal/infrastructure/metrics"
	"p2p-lending-backend/internal/infrastructure/mpesa"
	"p2p-lending-backend/internal/infrastructure/queue"
	"p2p-lending-backend/internal/infrastructure/scheduler"
	"p2p-lending-backend/internal/usecase/investment"
	"p2p-lending-backend/internal/usecase/loan"
	"p2p-lending-backend/internal/usecase/notification"
	paymentUC "p2p-lending-backend/internal/usecase/payment"
	"p2p-lending-backend/internal/usecase/user"
	"p2p-lending-backend/pkg/logging"

	"github.com/shopspring/decimal"
)

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		fatal("invalid config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		fatal("mysql connect", "err", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		fatal("auto-migrate", "err", err)
	}
	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		fatal("redis connect", "err", err)
	}
	defer rdb.Close()

	m := metrics.New()
	gw := mpesa.NewClient(mpesa.Config{
		BaseURL:        cfg.MpesaBaseURL,
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		ShortCode:      cfg.MpesaShortCode,
		Passkey:        cfg.MpesaPasskey,
		CallbackURL:    cfg.MpesaCallbackURL,
		Timeout:        cfg.MpesaTimeout,
	}, cache.NewTokenStore(rdb))

	users := mysql.NewUserRepository(gdb)
	notifications := notification.NewUsecase(mysql.NewNotificationRepository(gdb))

	// events go through the broker when one is configured, else straight to the notifier
	var pub event.Publisher = event.DirectPublisher{Handle: notifications.Record}
	if cfg.AMQPURL != "" {
		p := queue.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		defer p.Close()
		pub = p
		consumer := &queue.Consumer{URL: cfg.AMQPURL, Queue: cfg.AMQPQueue, Prefetch: 16, Handle: notifications.Record}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("event consumer stopped", "err", err)
			}
		}()
	}

	invCfg := investment.DefaultConfig()
	invCfg.MinAmount = decimal.NewFromInt(cfg.MinInvestment)
	invCfg.Bank.BankName = cfg.BankName
	invCfg.Bank.Paybill = cfg.BankPaybill
	invCfg.Bank.AccountName = cfg.BankAccountName
	investments := investment.NewUsecase(mysql.NewGormUoW(gdb), gw, pub, m, invCfg)

	payCfg := paymentUC.DefaultConfig()
	payCfg.PollInterval = cfg.PollInterval
	payCfg.PollMaxAttempts = cfg.PollMaxAttempts
	payments := paymentUC.NewUsecase(mysql.NewTransactionRepository(gdb), gw, investments, m, payCfg)

	sched := scheduler.New(cfg.SweepTimeout)
	err = sched.Add("reconcile_payments", cfg.SweepSpec, func(ctx context.Context) error {
		rep, err := payments.Reconcile(ctx)
		if err != nil {
			return err
		}
		if rep.Checked > 0 {
			slog.Info("reconcile: swept pending transactions",
				"checked", rep.Checked, "completed", rep.Completed, "failed", rep.Failed,
				"expired", rep.Expired, "unconfirmed", rep.Unconfirmed)
		}
		return nil
	})
	if err != nil {
		fatal("scheduler", "err", err)
	}
	sched.Start()

	e := httpadp.NewRouter(httpadp.Deps{
		Loans:         loan.NewUsecase(mysql.NewLoanRepository(gdb), pub, loan.DefaultRules()),
		Investments:   investments,
		Payments:      payments,
		Users:         user.NewUsecase(users, mysql.NewInvestmentRepository(gdb)),
		Notifications: notifications,
		JWT:           auth.NewJWTManager(cfg.JWTSecret, 24*time.Hour),
		Redis:         rdb,
		IdempTTL:      time.Duration(cfg.IdempTTLSecs) * time.Second,
		Metrics:       m,
		MaxAwait:      time.Duration(cfg.PollMaxAttempts) * cfg.PollInterval,
		Checks: []httpadp.Check{
			{Name: "mysql", Ping: func(ctx context.Context) error {
				sqlDB, err := gdb.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			}},
			{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
	})

	addr := ":" + cfg.AppPort
	go func() {
		slog.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("http server", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "err", err)
	}
	sched.Stop(shutdownCtx)
}
