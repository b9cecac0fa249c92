package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jithinsankar/fastapi-cached/internal/cache"
	"github.com/jithinsankar/fastapi-cached/internal/handlers"
	"github.com/jithinsankar/fastapi-cached/internal/httpserver"
	"github.com/jithinsankar/fastapi-cached/internal/intercept"
	"github.com/jithinsankar/fastapi-cached/internal/metrics"
	"github.com/jithinsankar/fastapi-cached/pkg/logging"
)

type config struct {
	Port         string
	CacheBackend string // "file", "memory" or "redis"
	CachePath    string
	RedisAddr    string
	Parallelism  int
	Delay        time.Duration
	Lenient      bool
}

func defaultConfig() config {
	return config{
		Port:         getenv("PORT", "8080"),
		CacheBackend: getenv("CACHE_BACKEND", "file"),
		CachePath:    getenv("CACHE_PATH", "sales_report_cache.json"),
		RedisAddr:    getenv("REDIS_ADDR", "127.0.0.1:6379"),
		Parallelism:  4,
		Delay:        2 * time.Second,
	}
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("precached exited with error: %v", err)
	}
}

func rootCmd() *cobra.Command {
	cfg := defaultConfig()

	root := &cobra.Command{
		Use:           "precached",
		Short:         "Precomputes and serves handlers over discrete parameter spaces",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfg.CacheBackend, "backend", cfg.CacheBackend, "cache backend: file, memory or redis")
	root.PersistentFlags().StringVar(&cfg.CachePath, "cache-path", cfg.CachePath, "cache file path (file backend)")
	root.PersistentFlags().StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address (redis backend)")
	root.PersistentFlags().IntVar(&cfg.Parallelism, "parallelism", cfg.Parallelism, "concurrent handler invocations during precomputation")
	root.PersistentFlags().DurationVar(&cfg.Delay, "delay", cfg.Delay, "simulated per-call handler latency")
	root.PersistentFlags().BoolVar(&cfg.Lenient, "lenient", false, "treat a corrupt cache file as empty instead of failing")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the demo server and precompute on startup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}
	serve.Flags().StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")

	warm := &cobra.Command{
		Use:   "warm",
		Short: "Run precomputation and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWarm(cmd.Context(), cfg)
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the entries of a cache file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), cfg)
		},
	}

	root.AddCommand(serve, warm, show)
	return root
}

// buildWrapper wires the demo sales-report handler to its store per config.
func buildWrapper(cfg config, logger *zap.Logger) (*intercept.Wrapper, error) {
	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return nil, err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	store := cache.NewStore(cache.Config{
		Backend: cfg.CacheBackend,
		Path:    cfg.CachePath,
		Prefix:  "sales_report",
		Lenient: cfg.Lenient,
	}, redisClient)

	return handlers.NewSalesReportWrapper(
		handlers.SalesReportConfig{Delay: cfg.Delay},
		intercept.WithStore(cache.NewLoggingStore(store, "sales_report")),
		intercept.WithParallelism(cfg.Parallelism),
	)
}

func runServe(cfg config) error {
	logger := logging.DefaultLogger()
	defer logger.Sync()

	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("cache_path", cfg.CachePath),
		zap.Int("parallelism", cfg.Parallelism),
	)

	wrapper, err := buildWrapper(cfg, logger)
	if err != nil {
		return err
	}

	registry := intercept.NewRegistry()
	if err := registry.Register(wrapper); err != nil {
		return err
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, registry, map[string]*intercept.Wrapper{
		"/sales-report": wrapper,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Startup hook: precompute while the server already answers (live
	// fallback until Ready, /readyz flips once the store is complete).
	precomputeCtx, cancelPrecompute := context.WithCancel(
		logging.WithLogger(context.Background(), logger))
	defer cancelPrecompute()

	go func() {
		if err := registry.PrecomputeAll(precomputeCtx); err != nil {
			logger.Error("precomputation failed", zap.Error(err))
			return
		}
		logger.Info("precomputation complete, serving from cache")
	}()

	logger.Info("starting server", zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	// Abandon in-flight precomputation; flushed entries are kept and the
	// next run resumes from them.
	cancelPrecompute()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

func runWarm(ctx context.Context, cfg config) error {
	logger := logging.DefaultLogger()
	defer logger.Sync()

	wrapper, err := buildWrapper(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(
		logging.WithLogger(ctx, logger), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := wrapper.Precompute(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("precomputed %d, skipped %d, failed %d of %d combinations\n",
		report.Computed, report.Skipped, len(report.Failed), report.Total)
	for _, key := range report.FailedKeys() {
		fmt.Printf("  failed: %s: %v\n", key, report.Failed[key])
	}

	return report.Err()
}

func runShow(ctx context.Context, cfg config) error {
	store := cache.NewFileStore(cfg.CachePath)
	if err := store.Load(ctx); err != nil {
		return err
	}

	keys := store.Keys()
	sort.Strings(keys)

	for _, key := range keys {
		value, _, err := store.Get(ctx, key)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := json.Compact(&buf, value); err != nil {
			buf.Write(value)
		}
		fmt.Printf("%s\t%s\n", key, buf.Bytes())
	}

	fmt.Printf("%d entries in %s\n", len(keys), cfg.CachePath)
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
