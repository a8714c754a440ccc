package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"strikeOutAPI/handlers"
	"strikeOutAPI/internal/clock"
	"strikeOutAPI/internal/config"
	"strikeOutAPI/internal/notification"
	"strikeOutAPI/internal/store"
	"strikeOutAPI/internal/timezone"
	"strikeOutAPI/internal/workers"
	"strikeOutAPI/middleware"
	"strikeOutAPI/services"

	_ "net/http/pprof"
)

var (
	cfg               *config.Config
	dbPool            *pgxpool.Pool
	repo              store.Repository
	dispatcher        *services.NotificationDispatcher
	evaluationService *services.EvaluationService
	challengeService  *services.ChallengeService
)

func init() {
	cfg = config.Load()

	if cfg.ClerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(cfg.ClerkSecretKey)
	log.Println("Clerk initialized successfully")

	if cfg.DefaultTimezone != "" && !timezone.SetDefault(cfg.DefaultTimezone) {
		log.Printf("Warning: DEFAULT_TIMEZONE %q cannot be loaded, using %s", cfg.DefaultTimezone, timezone.Default())
	}
	log.Printf("Default admin timezone: %s", timezone.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL is not set, using in-memory store")
		repo = store.NewInMemoryStore()
	} else {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to parse database URL:", err)
		}

		poolConfig.MaxConns = 25
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute
		poolConfig.HealthCheckPeriod = time.Minute

		dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			log.Fatal("Failed to create connection pool:", err)
		}

		if err := dbPool.Ping(ctx); err != nil {
			log.Fatal("Failed to ping database:", err)
		}
		log.Println("Successfully connected to database")

		pgStore := store.NewPostgresStore(dbPool)
		if err := pgStore.Migrate(ctx); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		repo = pgStore
	}

	dispatcher = services.NewNotificationDispatcher(repo, repo, 5)
	fcmService, err := notification.NewFCMService(ctx, cfg.FCMCredentials, cfg.FCMKeyFile)
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		dispatcher.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	clk := clock.NewReal()
	evaluationService = services.NewEvaluationService(repo, dispatcher, clk, cfg.LedgerWindowDays)
	challengeService = services.NewChallengeService(repo, evaluationService, clk, cfg.LedgerWindowDays)

	middleware.InitPrometheus(prometheus.DefaultRegisterer)
	services.RegisterMetrics(prometheus.DefaultRegisterer)
}

func main() {
	defer func() {
		if dbPool != nil {
			log.Println("Closing database connection pool...")
			dbPool.Close()
		}
	}()

	challengeHandler := handlers.NewChallengeHandler(challengeService)
	notificationHandler := handlers.NewNotificationHandler(repo)

	sweepWorker := workers.NewSweepWorker(evaluationService, cfg.SweepInterval)
	sweepWorker.Start()
	log.Printf("Sweep worker started (every %s)", cfg.SweepInterval)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	stopCleanup := make(chan struct{})
	go limiter.CleanupVisitors(stopCleanup)

	r := mux.NewRouter()
	r.Use(limiter.Middleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.PprofSecret)(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if dbPool != nil {
			if err := dbPool.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "strikeOut-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := r.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/challenges", challengeHandler.CreateChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{id}/join", challengeHandler.JoinChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{id}/status", challengeHandler.GetStatus).Methods("GET")
	protected.HandleFunc("/challenges/{id}/check-ins", challengeHandler.SubmitCheckIn).Methods("POST")
	protected.HandleFunc("/challenges/{id}/outcomes", challengeHandler.GetOutcomes).Methods("GET")
	protected.HandleFunc("/challenges/{id}/sweep", challengeHandler.Sweep).Methods("POST")

	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := ":" + cfg.Port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	sweepWorker.Stop()
	dispatcher.Stop()
	close(stopCleanup)

	log.Println("Server shutdown complete")
}
