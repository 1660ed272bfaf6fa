package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"

	"github.com/iliyamo/ticketing-platform/internal/clock"
	"github.com/iliyamo/ticketing-platform/internal/config"
	"github.com/iliyamo/ticketing-platform/internal/database"
	"github.com/iliyamo/ticketing-platform/internal/handler"
	"github.com/iliyamo/ticketing-platform/internal/middleware"
	"github.com/iliyamo/ticketing-platform/internal/payment"
	"github.com/iliyamo/ticketing-platform/internal/queue"
	"github.com/iliyamo/ticketing-platform/internal/repository"
	"github.com/iliyamo/ticketing-platform/internal/router"
	"github.com/iliyamo/ticketing-platform/internal/service"
)

func main() {
	envFile := pflag.String("env-file", ".env", "optional dotenv file loaded before reading the environment")
	plansFile := pflag.String("plans", "", "organizer plan catalog (YAML); overrides PLANS_FILE")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	sweepEvery := pflag.Duration("sweep-interval", time.Minute, "how often stale pending orders are expired")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatalf("load %s: %v", *envFile, err)
	}
	cfg := config.Load() // Load environment config
	if *plansFile != "" {
		cfg.PlansFile = *plansFile
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	mctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	err = database.Migrate(mctx, db)
	cancel()
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if *migrateOnly {
		log.Printf("migrations applied")
		return
	}

	plans, err := config.LoadPlans(cfg.PlansFile)
	if err != nil {
		log.Fatalf("plans: %v", err)
	}
	rdb := config.NewRedisClient() // nil when Redis is down
	if rdb != nil {
		defer rdb.Close()
	}

	// ---- Payment gateways ----
	orderTTL := time.Duration(cfg.OrderTTLMin) * time.Minute
	pc := cfg.Payments
	stripeGW := payment.NewStripe(payment.StripeConfig{
		SecretKey: pc.StripeSecretKey, PublishableKey: pc.StripePublishableKey,
		WebhookSecret: pc.StripeWebhookSecret, Currency: pc.Currency,
	})
	pagarmeGW := payment.NewPagarme(payment.PagarmeConfig{
		SecretKey: pc.PagarmeSecretKey, PublicKey: pc.PagarmePublicKey, BaseURL: pc.PagarmeBaseURL,
		WebhookSecret: pc.PagarmeWebhookSecret, PixTTL: orderTTL,
	})
	pagseguroGW := payment.NewPagSeguro(payment.PagSeguroConfig{
		Token: pc.PagSeguroToken, BaseURL: pc.PagSeguroBaseURL, NotifyURL: pc.PagSeguroNotifyURL, PixTTL: orderTTL,
	})
	gateways := payment.Registry{}
	gateways.Register(stripeGW)
	gateways.Register(pagarmeGW)
	gateways.Register(pagseguroGW)
	log.Printf("payment providers: %v", gateways.Names())

	// ---- Repositories and services ----
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	types := repository.NewTicketTypeRepo(db)
	orders := repository.NewOrderRepo(db)
	tickets := repository.NewTicketRepo(db)
	views := repository.NewViewRepo(db)
	subs := repository.NewSubscriptionRepo(db)

	clk := clock.System()
	var publisher service.Publisher
	if url := queue.BrokerURL(); url != "" {
		publisher = service.NewAMQPPublisher(url)
	}
	orderSvc := service.NewOrderService(service.OrderServiceDeps{
		Tx: service.SQLTransactor{DB: db}, Events: events, Types: types, Orders: orders, Tickets: tickets, Users: users,
		Gateways: gateways, Publisher: publisher, Clock: clk,
		Currency: pc.Currency, OrderTTL: orderTTL,
	})
	var billing service.Billing
	if stripeGW != nil {
		billing = stripeGW
	}
	planSvc := service.NewSubscriptionService(subs, users, events, plans, billing)
	ticketSvc := service.NewTicketService(tickets, events, cfg.TicketSigningSecret, clk)
	analyticsSvc := service.NewAnalyticsService(events, views, orders, tickets, clk)
	webhookSvc := service.NewWebhookService(orderSvc, planSvc, service.NewDeduper(rdb, 0))

	// ---- HTTP ----
	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.LoggerWithConfig(echomw.LoggerConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == "/healthz" },
	}))

	cacheCfg := config.LoadCacheConfig()
	webhooks := handler.NewWebhookHandler(webhookSvc)
	if stripeGW != nil {
		webhooks.Register(payment.ProviderStripe, "Stripe-Signature", stripeGW)
	}
	if pagarmeGW != nil {
		webhooks.Register(payment.ProviderPagarme, "X-Hub-Signature", pagarmeGW)
	}
	if pagseguroGW != nil {
		webhooks.Register(payment.ProviderPagSeguro, "x-authenticity-token", pagseguroGW)
	}

	router.RegisterRoutes(e, &handler.ReadyHandler{DB: db, Redis: rdb})
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig("auth"), rdb))
	router.RegisterPublic(e,
		&handler.PublicHandler{Events: events, Types: types, Analytics: analyticsSvc, Plans: planSvc, Clock: clk},
		&handler.PaymentsHandler{Stripe: stripeGW, Pagarme: pagarmeGW, PagSeguro: pagseguroGW},
		middleware.NewRedisCache(cacheCfg, rdb),
		middleware.NewTokenBucket(config.LoadRateLimitConfig("card_token"), rdb))
	router.RegisterCustomer(e, handler.NewCustomerHandler(orderSvc, ticketSvc, users), cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig("checkout"), rdb))
	router.RegisterOrganizer(e,
		handler.NewOrganizerHandler(events, types, planSvc, analyticsSvc, ticketSvc, clk),
		&handler.SubscriptionHandler{Plans: planSvc},
		cfg.JWTSecret, middleware.PurgeCacheOnWrite(cacheCfg, rdb))
	router.RegisterWebhooks(e, webhooks)

	// ---- Background workers ----
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go orderSvc.RunSweeper(ctx, *sweepEvery)
	if url := queue.BrokerURL(); url != "" {
		consumer := queue.NewOrderConsumer(url)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("order consumer stopped: %v", err)
			}
		}()
	}

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := e.Shutdown(sctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
