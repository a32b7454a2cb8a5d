package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/axstorch/foodcourt/cartstore"
	"github.com/axstorch/foodcourt/catalog"
	"github.com/axstorch/foodcourt/checkout"
	"github.com/axstorch/foodcourt/services"
)

const (
	defaultPort       = "8080"
	defaultHealthPort = "7070"
	defaultCartPath   = "data/cart.json"
	defaultCartKey    = "foodcourt"

	shutdownTimeout = 10 * time.Second
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Level = logrus.DebugLevel
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
}

func main() {
	ctx := context.Background()

	tp, err := initTracerProvider(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	persister := newPersister(ctx)
	store := cartstore.New(persister, log, cartstore.WithDebounce(cartDebounce()))
	if err := store.Refresh(ctx); err != nil {
		log.WithError(err).Warn("could not load persisted cart, starting empty")
	}

	cat, err := catalog.Load(os.Getenv("CATALOG_PATH"))
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}
	log.WithField("items", cat.Size()).Info("catalog loaded")

	var checkoutClient *checkout.Client
	if gatewayURL := os.Getenv("PAYMENT_GATEWAY_URL"); gatewayURL != "" {
		checkoutClient = checkout.NewClient(
			gatewayURL,
			os.Getenv("PAYMENT_KEY_ID"),
			os.Getenv("PAYMENT_KEY_SECRET"),
			log,
		)
		log.Info("checkout enabled")
	} else {
		log.Warn("PAYMENT_GATEWAY_URL not set, checkout disabled")
	}

	srv := services.NewServer(store, cat, checkoutClient, log)

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: srv.Router(),
	}

	healthPort := os.Getenv("HEALTH_PORT")
	if healthPort == "" {
		healthPort = defaultHealthPort
	}
	healthLis, err := net.Listen("tcp", fmt.Sprintf(":%s", healthPort))
	if err != nil {
		log.Fatalf("failed to listen on health port %s: %v", healthPort, err)
	}
	grpcSrv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthpb.RegisterHealthServer(grpcSrv, services.NewHealthCheckService(store))

	go func() {
		log.Infof("health server listening on :%s", healthPort)
		if err := grpcSrv.Serve(healthLis); err != nil {
			log.Fatalf("failed to serve health server: %v", err)
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("http shutdown failed")
		}
	}()

	log.Infof("cartservice listening on :%s", port)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("failed to serve: %v", err)
	}

	grpcSrv.GracefulStop()

	// Flush the latest cart snapshot before the process exits so the
	// debounce window never loses data on a clean shutdown.
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := store.Close(closeCtx); err != nil {
		log.WithError(err).Error("cart store close failed")
	}
	if err := persister.Close(); err != nil {
		log.WithError(err).Error("persister close failed")
	}
	log.Info("cartservice stopped")
}

// newPersister selects the cart backend: Redis when REDIS_ADDR is set,
// otherwise a local JSON file.
func newPersister(ctx context.Context) cartstore.Persister {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		path := os.Getenv("CART_PATH")
		if path == "" {
			path = defaultCartPath
		}
		log.Infof("using file cart storage at %s", path)
		return cartstore.NewFilePersister(path)
	}

	if !strings.Contains(redisAddr, ":") {
		redisAddr += ":6379"
	}
	cartKey := os.Getenv("CART_KEY")
	if cartKey == "" {
		cartKey = defaultCartKey
	}
	log.Infof("using redis cart storage at %s", redisAddr)
	persister := cartstore.NewRedisPersister(redisAddr, cartKey, log)
	if err := persister.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize redis cart storage: %v", err)
	}
	return persister
}

func cartDebounce() time.Duration {
	raw := os.Getenv("CART_DEBOUNCE")
	if raw == "" {
		return cartstore.DefaultDebounce
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warnf("invalid CART_DEBOUNCE %q, using default", raw)
		return cartstore.DefaultDebounce
	}
	return d
}

// initTracerProvider sets up the OTLP trace exporter and registers the
// global tracer provider. OTEL_EXPORTER_OTLP_ENDPOINT selects the
// collector, e.g. otel-collector:4317.
func initTracerProvider(ctx context.Context) (*sdktrace.TracerProvider, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("cartservice"),
			semconv.ServiceVersionKey.String("v1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}
