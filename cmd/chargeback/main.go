package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/llm-chargeback/config"
	"github.com/vnmchuo/llm-chargeback/internal/api"
	"github.com/vnmchuo/llm-chargeback/internal/auth"
	"github.com/vnmchuo/llm-chargeback/internal/credential"
	"github.com/vnmchuo/llm-chargeback/internal/report"
	"github.com/vnmchuo/llm-chargeback/internal/seeder"
	"github.com/vnmchuo/llm-chargeback/internal/telemetry"
	"github.com/vnmchuo/llm-chargeback/internal/usage"
	"github.com/vnmchuo/llm-chargeback/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("llm-chargeback", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	log.Println("PostgreSQL connected")

	// 4. Resolve cache credential and connect Redis
	var creds credential.Provider
	if cfg.RedisListKeysURL != "" {
		creds = credential.NewManagedProvider(cfg.RedisListKeysURL,
			credential.StaticTokenSource(os.Getenv("MANAGEMENT_TOKEN")))
	} else {
		creds = credential.NewStaticProvider(cfg.RedisPassword)
	}

	accessKey := ""
	if cfg.RedisPassword != "" || cfg.RedisListKeysURL != "" {
		accessKey, err = creds.AccessKey(ctx)
		if err != nil {
			log.Fatalf("failed to resolve redis access key: %v", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: accessKey})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	log.Println("Redis connected")

	// 5. Init auth
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb)

	// 6. Init usage store and reporter
	usageStore := usage.NewRedisStore(rdb, cfg.UsageTTL)
	reporter := report.NewReporter(usageStore)

	// 7. Init rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitEPM)

	// 8. Init handler
	tracer := otel.GetTracerProvider().Tracer("llm-chargeback")
	handler := api.NewHandler(usageStore, reporter, limiter, tracer)

	// 9. Seed test API key if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestAPIKey(ctx, authStore)
	}

	// 10. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"llm-chargeback"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/logs", handler.HandleIngest)
		r.Get("/logs", handler.HandleLogs)
		r.Get("/chargeback", handler.HandleChargeback)
		r.Get("/ws/logs", handler.HandleLogsWS)
	})

	// 11. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Chargeback service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
