package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appreservation "github.com/man-1982/commerce-shop/internal/application/reservation"
	appstock "github.com/man-1982/commerce-shop/internal/application/stock"
	"github.com/man-1982/commerce-shop/internal/config"
	businfra "github.com/man-1982/commerce-shop/internal/infrastructure/eventbus"
	"github.com/man-1982/commerce-shop/internal/infrastructure/id"
	"github.com/man-1982/commerce-shop/internal/infrastructure/memory"
	"github.com/man-1982/commerce-shop/internal/infrastructure/observability/oteltrace"
	"github.com/man-1982/commerce-shop/internal/infrastructure/observability/prometrics"
	"github.com/man-1982/commerce-shop/internal/infrastructure/observability/telemetry"
	"github.com/man-1982/commerce-shop/internal/infrastructure/observability/zaplogger"
	"github.com/man-1982/commerce-shop/internal/observability"
	"github.com/man-1982/commerce-shop/internal/pkg/logging"
	httppresentation "github.com/man-1982/commerce-shop/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	baseLogger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	traceShutdown, err := telemetry.SetupTracingSDK(rootCtx, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		baseLogger.Fatal("tracing_setup_failed", zap.Error(err))
	}
	defer func() { _ = traceShutdown(context.Background()) }()

	appLogger := zaplogger.Wrap(baseLogger)

	registry := prometrics.New("commerce_shop", "")
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: registry.Counter(
			string(observability.MUsecaseRequests),
			"Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MHTTPRequests: registry.Counter(
			string(observability.MHTTPRequests),
			"Total number of HTTP requests.",
			"method", "route", "status",
		),
		observability.MEventPublishFailed: registry.Counter(
			string(observability.MEventPublishFailed),
			"Count of domain event publish failures after commit.",
			"event",
		),
		observability.MStockAdjustFailed: registry.Counter(
			string(observability.MStockAdjustFailed),
			"Count of asynchronous stock adjustments that failed after the cart write committed.",
		),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: registry.Histogram(
			string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.",
			nil,
			"use_case",
		),
		observability.MHTTPRequestDuration: registry.Histogram(
			string(observability.MHTTPRequestDuration),
			"Duration of HTTP request handling in seconds.",
			nil,
			"method", "route", "status",
		),
	}
	tel := telemetry.New(oteltrace.New(cfg.ServiceName), appLogger, counters, histograms)

	cartRepo := memory.NewCartRepository()
	productRepo := memory.NewProductRepository()
	idGenerator := id.NewUUIDGenerator()

	// In-memory event bus decouples cart commits from stock adjustment.
	bus := businfra.NewBus(businfra.Config{
		QueueSize:      cfg.BusQueueSize,
		FanoutLimit:    cfg.BusFanoutLimit,
		HandlerTimeout: cfg.BusHandlerTimeout,
	}, appLogger)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	reservationService := appreservation.NewService(cartRepo, productRepo, idGenerator, bus, cfg.WriteRetryDeadline, tel)
	adjuster := appstock.NewAdjuster(productRepo, cfg.WriteRetryDeadline, tel)
	stockWorker := appstock.NewWorker(bus, adjuster, tel)
	stockWorker.Start()

	catalog := appstock.NewCatalog(productRepo, idGenerator, cfg.WriteRetryDeadline)

	handler := httppresentation.NewHandler(reservationService, catalog, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		baseLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Error("http_server_error",
				zap.Error(err),
			)
		}
	}()

	<-rootCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("http_server_shutdown_error",
			zap.Error(err),
		)
	} else {
		baseLogger.Info("http_server_stopped")
	}
}
