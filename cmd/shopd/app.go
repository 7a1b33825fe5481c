package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appinventory "github.com/Zhima-Mochi/guestshop/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/guestshop/internal/application/order"
	apppayment "github.com/Zhima-Mochi/guestshop/internal/application/payment"
	"github.com/Zhima-Mochi/guestshop/internal/config"
	dominv "github.com/Zhima-Mochi/guestshop/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/guestshop/internal/domain/payment"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/gateway/paypal"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/gateway/stripe"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/id"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/guestshop/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/rediscache"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	httppresentation "github.com/Zhima-Mochi/guestshop/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/guestshop/internal/presentation/worker"
)

// app owns every long-lived dependency of the service. Closers run in
// reverse registration order.
type app struct {
	handler http.Handler
	logger  observability.Logger
	closers []func(ctx context.Context) error
}

type storage interface {
	domorder.Repository
	domorder.UnitOfWork
}

func newApp(ctx context.Context, cfg *config.Config, zl *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	shutdownTracer, err := telemetry.SetupTracer(ctx, telemetry.Config{
		ServiceName: cfg.Service.Name,
		Environment: cfg.Service.Env,
		Endpoint:    cfg.OTel.Endpoint,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(shutdownTracer)

	reg := prometrics.New("")
	counters, histograms := infraobs.Instruments(reg)
	logger := zaplogger.New(zl)
	tel := infraobs.New(oteltrace.New(cfg.Service.Name), logger, counters, histograms)
	a.logger = logger

	pricing, err := cfg.Pricing()
	if err != nil {
		return nil, err
	}

	store, ready, err := a.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		repo    domorder.Repository = store
		limiter httppresentation.Limiter
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.onClose(func(context.Context) error { return client.Close() })

		repo = rediscache.NewOrderRepository(store, client, cfg.Redis.CacheTTL, cfg.Redis.Prefix, logger)
		limiter = rediscache.NewRateLimiter(client, cfg.Redis.RateLimit, cfg.Redis.RateWindow, cfg.Redis.Prefix)
		dbReady := ready
		ready = func(ctx context.Context) error {
			if err := dbReady(ctx); err != nil {
				return err
			}
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		}
	}

	bus := outbox.NewBus(outbox.Config{}, logger)

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return producer.Close() })
		apporder.NewRelayWorker(workerpresentation.NewSubscriber(bus, logger, "order_relay"), producer, "kafka", tel).Start()
	}
	appinventory.NewLowStockWorker(
		workerpresentation.NewSubscriber(bus, logger, "low_stock"), cfg.Orders.LowStockThreshold, tel,
	).Start()

	bus.Start(ctx)
	// Registered after the producer so pending events drain before it closes.
	a.onClose(bus.Stop)

	allocator, err := apporder.NewAllocator(cfg.Orders.NumberStrategy)
	if err != nil {
		return nil, err
	}
	gateways := buildGateways(cfg.Payments, logger)
	payPricing := dompay.Pricing{
		StoreCurrency: cfg.Payments.StoreCurrency,
		ExchangeRate:  pricing.ExchangeRate,
		Tolerance:     pricing.AmountTolerance,
	}
	reconciler := apppayment.NewReconciler(repo, bus, domorder.OutcomePolicy(cfg.Payments.OutcomePolicy), tel)

	uc := httppresentation.UseCases{
		CreateOrder: apporder.NewCreateOrderUseCase(store, allocator, id.NewUUIDGenerator(), bus, apporder.CreateOrderConfig{
			MaxAttempts: cfg.Orders.MaxCreateAttempts,
			PriceDrift:  pricing.PriceDrift,
		}, tel),
		GetOrder:      apporder.NewGetOrderUseCase(repo, tel),
		ListOrders:    apporder.NewListOrdersUseCase(repo, tel),
		UpdateStatus:  apporder.NewUpdateStatusUseCase(repo, bus, tel),
		CreateSession: apppayment.NewCreateSessionUseCase(gateways, repo, payPricing, tel),
		Capture:       apppayment.NewCaptureUseCase(gateways, repo, payPricing, reconciler, tel),
		Webhook:       apppayment.NewHandleWebhookUseCase(gateways, payPricing, reconciler, tel),
	}
	a.handler = httppresentation.NewHandler(uc, httppresentation.Options{
		Gateways: gateways,
		Limiter:  limiter,
		Ready:    ready,
		Metrics:  reg.Handler(),
	}, logger, tel).Router()

	logger.Info("app_ready",
		observability.F("storage", storageKind(cfg)),
		observability.F("redis", cfg.Redis.Addr != ""),
		observability.F("kafka", len(cfg.Kafka.Brokers) > 0),
		observability.F("gateways", len(gateways)),
		observability.F("outcome_policy", reconciler.Policy()),
	)
	return a, nil
}

func (a *app) openStorage(ctx context.Context, cfg *config.Config) (storage, func(context.Context) error, error) {
	if cfg.Database.URL == "" {
		store := memory.NewStore()
		records, err := catalogRecords(cfg.Catalog)
		if err != nil {
			return nil, nil, err
		}
		for _, rec := range records {
			store.SeedProduct(rec)
		}
		return store, func(context.Context) error { return nil }, nil
	}

	pool, err := postgres.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	a.onClose(func(context.Context) error { pool.Close(); return nil })
	store := postgres.NewStore(pool)
	return store, store.Ping, nil
}

func buildGateways(cfg config.PaymentsConfig, logger observability.Logger) dompay.Registry {
	var gws []dompay.Gateway
	if cfg.PayPal.Enabled {
		gws = append(gws, paypal.New(paypal.Config{
			BaseURL:       cfg.PayPal.BaseURL,
			ClientID:      cfg.PayPal.ClientID,
			Secret:        cfg.PayPal.Secret,
			WebhookSecret: cfg.PayPal.WebhookSecret,
			Currency:      cfg.PayPal.Currency,
			ReturnURL:     cfg.PayPal.ReturnURL,
			CancelURL:     cfg.PayPal.CancelURL,
			Timeout:       cfg.Timeout,
		}, logger))
	}
	if cfg.Stripe.Enabled {
		gws = append(gws, stripe.New(stripe.Config{
			BaseURL:       cfg.Stripe.BaseURL,
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Currency:      cfg.Stripe.Currency,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
			Timeout:       cfg.Timeout,
		}, logger))
	}
	return dompay.NewRegistry(gws...)
}

func catalogRecords(cfg config.CatalogConfig) ([]dominv.Record, error) {
	out := make([]dominv.Record, 0, len(cfg.Products))
	for _, p := range cfg.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog product %s: %w", p.ID, err)
		}
		rec, err := dominv.NewRecord(p.ID, p.Name, price, p.Stock)
		if err != nil {
			return nil, fmt.Errorf("catalog product %s: %w", p.ID, err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

func storageKind(cfg *config.Config) string {
	if cfg.Database.URL == "" {
		return "memory"
	}
	return "postgres"
}

func (a *app) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
