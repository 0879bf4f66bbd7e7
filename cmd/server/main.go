package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/leadforge-service/internal/api"
	"github.com/teresa-solution/leadforge-service/internal/config"
	"github.com/teresa-solution/leadforge-service/internal/crypto"
	"github.com/teresa-solution/leadforge-service/internal/monitoring"
	"github.com/teresa-solution/leadforge-service/internal/notify"
	"github.com/teresa-solution/leadforge-service/internal/service"
	"github.com/teresa-solution/leadforge-service/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const healthServiceName = "leadforge.LeadService"

func main() {
	configPath := flag.String("config", "", "Path to config file (toml, yaml or json)")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log)

	cipher, err := crypto.NewSINCipherFromHex(cfg.Crypto.SINKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid SIN encryption key")
	}

	ctx := context.Background()
	repo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer repo.Close()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
	}

	relay, err := newRelay(cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up relay")
	}
	dispatcher := notify.NewDispatcher(relay, cfg.Relay.QueueSize, cfg.Relay.Timeout)

	// Initialize metrics
	monitoring.InitMetrics()

	opts := service.Options{
		Notifier:       dispatcher,
		TenantFallback: service.TenantFallback(cfg.Tenant.Fallback),
	}
	var idempotency *store.IdempotencyStore
	if rdb != nil {
		idempotency = store.NewIdempotencyStore(rdb, cfg.Idempotency.TTL)
		opts.Idempotency = idempotency
	} else {
		log.Warn().Msg("Redis not configured, Idempotency-Key headers will be ignored")
	}
	leadService := service.NewLeadService(repo, cipher, opts)

	if strings.EqualFold(cfg.Log.Format, "json") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.NewHandler(leadService), api.NewAuthenticator(cfg.Auth.JWTSecret), api.RouterConfig{
		AllowedOrigins: cfg.HTTP.CORSOrigins,
	})
	apiServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting LeadForge API server")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server error")
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen")
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	go func() {
		log.Info().Msgf("gRPC health server listening at %v", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to start gRPC server")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("HTTP server for health checks and metrics started")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Metrics server shutdown failed")
	}
	grpcServer.GracefulStop()

	// the redis relay owns the client; otherwise the idempotency store does
	if err := dispatcher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close relay")
	}
	if idempotency != nil && cfg.Relay.Driver != "redis" {
		if err := idempotency.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis client")
		}
	}
	log.Info().Msg("Server exiting")
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig) (store.Repository, error) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		return store.NewMemoryRepository(), nil
	}
	return store.NewPostgresRepository(ctx, cfg.DSN, store.PoolOptions{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

func newRelay(cfg *config.Config, rdb *redis.Client) (notify.Relay, error) {
	switch cfg.Relay.Driver {
	case "redis":
		if rdb == nil {
			return nil, errors.New("relay.driver redis requires redis.addr")
		}
		return notify.NewRedisRelay(rdb, cfg.Relay.ChannelPrefix), nil
	case "kafka":
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing lead events to Kafka")
		return notify.NewKafkaRelay(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	default:
		return notify.NopRelay{}, nil
	}
}
