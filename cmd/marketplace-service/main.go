package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/checkout"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/config"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/customer"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/db"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/events"
	handler "github.com/vasiliy-maslov/agrifarma-marketplace/internal/handler/http"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/pricing"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/report"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/session"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/storage/memory"
)

// backend is the set of stores the service runs on.
type backend struct {
	products  catalog.Repository
	mirror    cart.MirrorRepository
	orders    order.Repository
	customers customer.Repository
	reports   report.Repository
	sessions  session.Store
	closers   []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.Name).Logger()
}

func newPostgresBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if err := db.ApplyMigrations(cfg.Postgres); err != nil {
		return nil, err
	}

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}

	rdb := session.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := rdb.Ping(ctx).Err(); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to redis")

	return &backend{
		products:  catalog.NewRepository(pg.Pool),
		mirror:    cart.NewMirrorRepository(pg.Pool),
		orders:    order.NewRepository(pg.Pool),
		customers: customer.NewRepository(pg.Pool),
		reports:   report.NewRepository(pg.SQLX),
		sessions:  session.NewRedisStore(rdb, cfg.Session.TTL),
		closers: []func(){
			pg.Close,
			func() {
				if err := rdb.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close redis client")
				}
			},
		},
	}, nil
}

func newMemoryBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	store, err := memory.New()
	if err != nil {
		return nil, err
	}

	products := store.Products()
	for _, seed := range cfg.Seed {
		p := &catalog.Product{
			Name:          seed.Name,
			Slug:          seed.Slug,
			SKU:           seed.SKU,
			Category:      seed.Category,
			Price:         decimal.RequireFromString(seed.Price),
			StockQuantity: seed.StockQuantity,
			IsActive:      true,
		}
		if err := products.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to seed product %q: %w", seed.Slug, err)
		}
	}
	log.Warn().Int("products", len(cfg.Seed)).Msg("Using in-memory storage, data is lost on restart")

	return &backend{
		products:  products,
		mirror:    store.CartMirror(),
		orders:    store.Orders(),
		customers: store.Customers(),
		reports:   store.Reports(),
		sessions:  store.Sessions(cfg.Session.TTL),
	}, nil
}

func main() {
	defaultConfig := "config/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	configPath := flag.String("config", defaultConfig, "path to the YAML config file")
	envPath := flag.String("env", ".env", "path to the .env file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().Str("storage", cfg.Storage).Msg("Marketplace service starting...")

	ctx := context.Background()

	var store *backend
	switch cfg.Storage {
	case config.StorageDriverMemory:
		store, err = newMemoryBackend(ctx, cfg)
	default:
		store, err = newPostgresBackend(ctx, cfg)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.close()

	publisher := events.NewNopPublisher()
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing order events to kafka")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	engine := pricing.NewEngine(store.products, pricing.Policy{
		TaxRate:     decimal.RequireFromString(cfg.Pricing.TaxRate),
		ShippingFee: decimal.RequireFromString(cfg.Pricing.ShippingFee),
	})
	carts := cart.NewService(store.products, store.mirror)
	checkoutService := checkout.NewService(engine, store.orders, carts, publisher, checkout.Options{
		StockPolicy:    order.StockPolicy(cfg.Checkout.StockPolicy),
		NumberAttempts: cfg.Checkout.OrderNumberAttempts,
		ResubmitWindow: cfg.Checkout.ResubmitWindow,
	})
	orderService := order.NewService(store.orders, publisher)

	router := handler.NewRouter(handler.Deps{
		Products:  store.products,
		Customers: store.customers,
		Reports:   store.reports,
		Sessions:  store.sessions,
		Carts:     carts,
		Pricing:   engine,
		Checkout:  checkoutService,
		Orders:    orderService,
		Cookie: session.CookieOptions{
			Name:   cfg.Session.CookieName,
			TTL:    cfg.Session.TTL,
			Secure: cfg.Session.Secure,
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		return
	}
	log.Info().Msg("Server stopped")
}
