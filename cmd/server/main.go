package main

import (
	"context"
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
	"github.com/shopspring/decimal"

	"github.com/aerolux/marketplace-engine/internal/fees"
	"github.com/aerolux/marketplace-engine/internal/metrics"
	"github.com/aerolux/marketplace-engine/internal/settlement"
	"github.com/aerolux/marketplace-engine/internal/store"
	"github.com/aerolux/marketplace-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
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
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Fee policy ---
	policy := fees.DefaultPolicy()
	if bps := os.Getenv("FEE_RATE_BPS"); bps != "" {
		rate, err := decimal.NewFromString(bps)
		if err != nil {
			slog.Error("invalid FEE_RATE_BPS", "err", err)
			os.Exit(1)
		}
		policy, err = fees.NewPolicy(rate.Div(decimal.NewFromInt(10000)))
		if err != nil {
			slog.Error("invalid fee rate", "err", err)
			os.Exit(1)
		}
	}

	// --- Transfer executor ---
	// The mock stands in for the real settlement rail; swap behind the
	// settlement.TransferExecutor interface.
	executor := settlement.NewMockExecutor()

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Marketplace service ---
	svc := trade.NewService(st, executor, policy, wsHub)

	// --- Background expiry sweep ---
	sweepInterval := time.Minute
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid SWEEP_INTERVAL", "err", err)
			os.Exit(1)
		}
		sweepInterval = d
	}
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				svc.SweepExpired(sweepCtx)
			case <-sweepCtx.Done():
				return
			}
		}
	}()

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
		w.Write([]byte(`{"status":"ok","service":"marketplace-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time listing/trade events.
		r.Get("/ws", wsHub.HandleWS)

		// Asset registry.
		r.Get("/assets", svc.ListAssets)
		r.Post("/assets", svc.CreateAsset)
		r.Get("/assets/{assetID}", svc.GetAsset)
		r.Put("/assets/{assetID}/price", svc.UpdateReferencePrice)

		// Listings.
		r.Get("/listings", svc.ListListings)
		r.Post("/listings", svc.CreateListing)
		r.Get("/listings/{listingID}", svc.GetListing)
		r.Delete("/listings/{listingID}", svc.CancelListing)
		r.Get("/listings/{listingID}/trades", svc.GetListingTrades)

		// Trade execution.
		r.Post("/trades", svc.ExecuteTrade)

		// Investor queries.
		r.Get("/investors/{investorID}/trades", svc.GetInvestorTrades)
		r.Get("/investors/{investorID}/portfolio", svc.GetPortfolio)
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
		slog.Info("marketplace-engine listening", "port", port)
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

	slog.Info("shutting down marketplace-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	slog.Info("marketplace-engine stopped")
}
