package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vendmx/vending-engine/internal/auth"
	"github.com/vendmx/vending-engine/internal/metrics"
	"github.com/vendmx/vending-engine/internal/store"
	"github.com/vendmx/vending-engine/internal/vending"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	lockWait := 2 * time.Second
	if v := os.Getenv("LOCK_WAIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid LOCK_WAIT", "err", err)
			os.Exit(1)
		}
		lockWait = d
	}

	// --- Initialize stores ---
	var accounts store.AccountStore
	var products store.ProductStore
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		accounts = store.NewPostgresAccountStore(pool)
		products = store.NewPostgresProductStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			accounts = store.NewCachedAccountStore(accounts, rdb, 30*time.Second)
			products = store.NewCachedProductStore(products, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory stores (data will not persist)")
		accounts = store.NewMemoryAccountStore()
		products = store.NewMemoryProductStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	hub := vending.NewHub()
	go hub.Run()

	// --- Engine and HTTP service ---
	engine := vending.NewEngine(accounts, products, lockWait, hub)
	svc := vending.NewService(engine)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"vending-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for purchase and stock events.
		r.Get("/ws", hub.HandleWS)

		// Open routes: registration and catalog reads.
		r.Post("/user", svc.CreateAccount)
		r.Get("/products/{productName}", svc.GetProduct)

		// Everything else requires Basic auth.
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(accounts))

			r.Get("/user", svc.GetAccount)
			r.Put("/user", svc.UpdatePassword)
			r.Delete("/user", svc.DeleteAccount)

			r.Post("/deposit", svc.Deposit)
			r.Post("/deposit/reset", svc.ResetDeposit)
			r.Post("/buy", svc.Buy)

			r.Post("/products", svc.CreateProduct)
			r.Put("/products", svc.UpdateProduct)
			r.Delete("/products", svc.DeleteProduct)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("vending-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down vending-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("vending-engine stopped")
}
