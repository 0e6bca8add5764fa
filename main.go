package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-coaching/internal/admin/admin_api"
	"ms-coaching/internal/aml"
	amldb "ms-coaching/internal/aml/db"
	"ms-coaching/internal/auth"
	"ms-coaching/internal/booking"
	"ms-coaching/internal/booking/booking_api"
	bookingdb "ms-coaching/internal/booking/db"
	"ms-coaching/internal/cart"
	cartdb "ms-coaching/internal/cart/db"
	"ms-coaching/internal/config"
	"ms-coaching/internal/database"
	"ms-coaching/internal/database/migrations"
	"ms-coaching/internal/kafka"
	"ms-coaching/internal/listings"
	"ms-coaching/internal/listings/coach_api"
	listingdb "ms-coaching/internal/listings/db"
	"ms-coaching/internal/locks"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/obs"
	"ms-coaching/internal/payment"
	"ms-coaching/internal/payment/payment_api"
	"ms-coaching/internal/payouts"
	payoutdb "ms-coaching/internal/payouts/db"
	"ms-coaching/internal/refunds"
	refunddb "ms-coaching/internal/refunds/db"
	"ms-coaching/internal/revenue"
	"ms-coaching/internal/reviews"
	reviewdb "ms-coaching/internal/reviews/db"
	"ms-coaching/internal/slots"
	slotdb "ms-coaching/internal/slots/db"
	"ms-coaching/internal/sse"
	"ms-coaching/internal/wallet"
	walletdb "ms-coaching/internal/wallet/db"
	"ms-coaching/internal/wallet/wallet_api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{Dir: cfg.Database.Migrations, AutoMigrate: true}, log)
		if err := runner.Up(); err != nil {
			log.Fatal("MIGRATION", fmt.Sprintf("Migrations failed: %v", err))
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))
	return bunDB, redisClient
}

// newVerifier prefers the OIDC issuer and falls back to the shared HS256 secret.
func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) auth.Verifier {
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("OIDC setup failed: %v", err))
		}
		log.Info("AUTH", fmt.Sprintf("Verifying bearer tokens against %s", cfg.OIDCIssuer))
		return v
	}
	if cfg.JWTSecret == "" {
		log.Fatal("CONFIG", "either OIDC_ISSUER or JWT_SECRET must be set")
	}
	log.Warn("AUTH", "OIDC_ISSUER not set, verifying HS256 tokens with JWT_SECRET")
	return auth.HMACVerifier{Secret: []byte(cfg.JWTSecret)}
}

func newPublisher(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) (kafka.Publisher, func()) {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, domain events are not published")
		return kafka.Nop{}, func() {}
	}
	if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, cfg.Topics.All(), log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}
	producer := kafka.NewProducer(cfg.Brokers, log)
	log.Info("KAFKA", "Kafka producer initialized successfully")
	return producer, func() { producer.Close() }
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Coaching Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	loc, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Unknown APP_TIMEZONE %q: %v", cfg.Server.Timezone, err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.Otel)
	if err != nil {
		log.Warn("OTEL", fmt.Sprintf("Tracing disabled: %v", err))
		shutdownTracer = func(context.Context) error { return nil }
	}

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	events, closeEvents := newPublisher(ctx, cfg.Kafka, log)
	defer closeEvents()

	// Alerts go through Kafka only when a consumer below writes them back.
	alertTopic := ""
	if cfg.Kafka.Enabled {
		alertTopic = cfg.Kafka.Topics.AmlAlerts
	}
	var cooldown aml.Cooldown = aml.NewMemoryCooldown()
	if cfg.Policy.SharedCooldown {
		cooldown = aml.NewRedisCooldown(redisClient)
		log.Info("AML", "High-value cooldown shared through Redis")
	}

	listingDB := &listingdb.DB{Bun: bunDB}
	slotDB := &slotdb.DB{Bun: bunDB}
	cartDB := &cartdb.DB{Bun: bunDB}
	bookingDB := &bookingdb.DB{Bun: bunDB}

	guard := aml.NewGuard(&amldb.DB{Bun: bunDB}, cfg.Policy, cooldown, events, alertTopic, log)
	emitter := sse.NewBookingEventEmitter()

	listingService := listings.NewService(listingDB, log)
	slotService := slots.NewService(slotDB, listingDB, log, loc)
	walletService := wallet.NewService(&walletdb.DB{Bun: bunDB}, guard, log)
	cartSession := cart.NewRedisSession(redisClient, cfg.Redis.CartTTL)
	cartService := cart.NewService(cartDB, cart.CatalogDB{Listings: listingDB, Slots: slotDB}, cartSession, log)
	bookingService := booking.NewService(bookingDB, cartDB, walletService, events, cfg.Kafka.Topics, emitter, log)
	bookingService.Sessions = cartSession
	refundService := refunds.NewService(&refunddb.DB{Bun: bunDB}, walletService, events, cfg.Kafka.Topics.RefundApproved, log, loc)
	reviewService := reviews.NewService(&reviewdb.DB{Bun: bunDB}, log)
	revenueService := revenue.NewService(revenue.NewDB(bunDB), loc)

	paypal := payment.NewPayPal(cfg.PayPal, payment.NewTokenCache(redisClient, "paypal_token"), log)
	payoutService := payouts.NewService(&payoutdb.DB{Bun: bunDB}, revenueService, guard, paypal,
		locks.NewRedis(redisClient, "payout_lock:"), events, cfg.Kafka.Topics.PayoutUpdated, cfg.PayPal.Currency, log)

	pending := payment.NewPendingStore(redisClient, time.Duration(cfg.Policy.PaymentStateTTLMinutes)*time.Minute)
	paymentService := payment.NewService(pending, cartService, bookingService, walletService, bookingDB, guard, cfg.Server.PublicURL, log)
	if cfg.Stripe.SecretKey != "" {
		paymentService.Stripe = payment.NewStripe(cfg.Stripe)
		log.Info("PAYMENT", "Stripe checkout enabled")
	}
	if cfg.PayPal.ClientID != "" {
		paymentService.PayPal = paypal
		log.Info("PAYMENT", "PayPal checkout enabled")
	}
	if cfg.NETS.APIKey != "" {
		paymentService.NETS = payment.NewNETS(cfg.NETS, log)
		log.Info("PAYMENT", "NETS QR enabled")
	}

	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.AmlAlerts, cfg.Kafka.GroupID, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer consumer.Close()
			if err := consumer.Run(ctx, guard.HandleAlertEvent); err != nil {
				log.Error("KAFKA", fmt.Sprintf("AML alert consumer stopped: %v", err))
			}
		}()
	}

	bookingHandler := &booking_api.Handler{
		Cart:     cartService,
		Bookings: bookingService,
		Reviews:  reviewService,
		Refunds:  refundService,
		SSE:      booking_api.NewSSEHandler(log, emitter),
		Logger:   log,
	}
	coachHandler := coach_api.NewHandler(listingService, slotService, revenueService, payoutService, log)
	walletHandler := &wallet_api.Handler{Wallet: walletService, Logger: log}
	paymentHandler := &payment_api.Handler{Payments: paymentService, Logger: log}
	adminHandler := &admin_api.Handler{
		Listings: listingService,
		Refunds:  refundService,
		Payouts:  payoutService,
		Revenue:  revenueService,
		Reviews:  reviewService,
		AML:      guard,
		Location: loc,
		Logger:   log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		coachHandler.RegisterPublicRoutes(r)
		bookingHandler.RegisterPublicRoutes(r)
		paymentHandler.RegisterWebhookRoutes(r)
		log.Info("ROUTER", "Public catalogue, review and webhook routes registered")

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(newVerifier(ctx, cfg.Auth, log), log))
			log.Info("AUTH", "JWT middleware applied to protected API routes")

			bookingHandler.RegisterRoutes(r)
			coachHandler.RegisterRoutes(r)
			walletHandler.RegisterRoutes(r)
			paymentHandler.RegisterRoutes(r)
			adminHandler.RegisterRoutes(r)
			log.Info("ROUTER", "Student, coach and admin routes registered under /api")
		})
	})

	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// No WriteTimeout: coach SSE streams hold the response open.
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Coaching Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	cancel()
	wg.Wait()
	if err := shutdownTracer(ctxShutdown); err != nil {
		log.Error("OTEL", fmt.Sprintf("Tracer shutdown failed: %v", err))
	}
	log.Info("HTTP", "✅ Coaching Service shutdown complete")
}
