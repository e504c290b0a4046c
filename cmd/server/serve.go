package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"satoshicheckout/internal/api"
	"satoshicheckout/internal/archive"
	"satoshicheckout/internal/btcpay"
	"satoshicheckout/internal/config"
	"satoshicheckout/internal/logging"
	"satoshicheckout/internal/metrics"
	"satoshicheckout/internal/payments"
	"satoshicheckout/internal/store"
)

type serveOptions struct {
	addr    string
	devMode bool
}

func serveCmd(envFile *string, opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.Load(*envFile), opts)
		},
	}
	opts.bindFlags(cmd)
	return cmd
}

// bindFlags registers the serve flags on cmd. The root command binds the same
// options so a bare invocation serves with them too.
func (o *serveOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.addr, "addr", "", "HTTP listen address (default :$PORT)")
	cmd.Flags().BoolVar(&o.devMode, "dev", false, "Development mode: disables CORS restrictions and rate limiting")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		logging.Internal.Printf("using SQLite status store (%s)", cfg.SQLitePath)
		return store.NewSQLiteStore(cfg.SQLitePath)
	case config.StoreRedis:
		logging.Internal.Printf("using Redis status store (%s, db %d)", cfg.RedisAddr, cfg.RedisDB)
		return store.NewRedisStore(ctx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case config.StoreMemory, "":
		logging.Internal.Println("using in-memory status store")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// openArchiver returns nil when no archive destination is configured.
func openArchiver(cfg *config.Config) (*archive.Archiver, error) {
	switch {
	case cfg.B2Bucket != "":
		s, err := archive.NewS3Storage(archive.S3Config{
			Endpoint: cfg.B2Endpoint,
			KeyID:    cfg.B2KeyID,
			AppKey:   cfg.B2AppKey,
			Bucket:   cfg.B2Bucket,
			Prefix:   cfg.B2Prefix,
		})
		if err != nil {
			return nil, err
		}
		logging.Internal.Printf("archiving webhooks to bucket %s", cfg.B2Bucket)
		return archive.NewArchiver(s), nil
	case cfg.ArchiveDir != "":
		s, err := archive.NewFSStorage(cfg.ArchiveDir)
		if err != nil {
			return nil, err
		}
		logging.Internal.Printf("archiving webhooks to %s", cfg.ArchiveDir)
		return archive.NewArchiver(s), nil
	default:
		return nil, nil
	}
}

func runServe(ctx context.Context, cfg *config.Config, opts *serveOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if missing := cfg.Missing(); len(missing) > 0 {
		logging.Internal.Printf("warning: missing configuration: %s (invoice creation and webhooks will fail)", strings.Join(missing, ", "))
	}

	client := btcpay.NewClient(btcpay.Config{
		BaseURL:    cfg.BTCPayURL,
		APIKey:     cfg.APIKey,
		StoreID:    cfg.StoreID,
		AuthScheme: cfg.AuthScheme,
	})

	pendingLimiter := api.NewPendingInvoiceLimiter(cfg.MaxPendingInvoices)

	var (
		st         store.Store
		reconciler payments.Reconciler
	)
	if cfg.StatusMode == config.StatusModeLive {
		logging.Internal.Println("status mode: live (every status query goes to BTCPay)")
		reconciler = payments.NewLiveReconciler(client)
	} else {
		var err error
		st, err = openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open status store: %w", err)
		}
		defer st.Close()

		var fallback payments.Reconciler
		if cfg.LiveFallback {
			fallback = payments.NewLiveReconciler(client)
		}
		cached := payments.NewCachedReconciler(st, fallback)
		cached.SetPaymentCallback(pendingLimiter.OnPaymentReceived)
		reconciler = cached
		logging.Internal.Printf("status mode: cached (live fallback: %v)", cfg.LiveFallback)
	}

	orchestrator := payments.NewOrchestrator(client, st, payments.Options{
		FallbackToLightning: cfg.FallbackToLightning,
	})

	archiver, err := openArchiver(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook archive: %w", err)
	}

	handler := api.NewHandler(orchestrator, reconciler, pendingLimiter)
	handler.SetWebhookSecret(cfg.WebhookSecret)
	handler.SetConfigured(cfg.Configured())
	if archiver != nil {
		handler.SetArchiver(archiver)
	}

	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("/api/", handler)
	mux.Handle("GET /metrics", promhttp.Handler())

	var corsConfig api.CORSConfig
	if opts.devMode || len(cfg.CORSOrigins) == 0 {
		logging.Internal.Println("CORS allowing all origins")
	} else {
		corsConfig.AllowedOrigins = cfg.CORSOrigins
		logging.Internal.Printf("CORS restricted to origins: %v", cfg.CORSOrigins)
	}

	// Order: Logger -> RateLimit -> CORS -> handler
	var finalHandler http.Handler = mux
	finalHandler = api.CORS(corsConfig)(finalHandler)
	if !opts.devMode {
		rateLimiter := api.NewRateLimiter(api.DefaultRateLimitConfig())
		defer rateLimiter.Stop()
		finalHandler = rateLimiter.Middleware(finalHandler)
		logging.Internal.Println("rate limiting enabled")
	}
	finalHandler = api.Logger(finalHandler)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := pendingLimiter.CleanupExpired(api.PendingTimeout); n > 0 {
					logging.Internal.Printf("released %d expired unpaid invoice(s)", n)
				}
			}
		}
	}()

	addr := opts.addr
	if addr == "" {
		addr = ":" + cfg.Port
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Internal.Printf("starting server on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Internal.Println("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Internal.Printf("shutdown error: %v", err)
	}
	return nil
}
