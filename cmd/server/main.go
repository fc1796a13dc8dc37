package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/activity-enrollment/internal/adapter/handler"
	"github.com/rl1809/activity-enrollment/internal/adapter/storage"
	"github.com/rl1809/activity-enrollment/internal/auth"
	"github.com/rl1809/activity-enrollment/internal/config"
	"github.com/rl1809/activity-enrollment/internal/core/service"
	"github.com/rl1809/activity-enrollment/internal/port"
)

type store interface {
	port.LedgerRepository
	port.CatalogRepository
}

type migrator interface {
	Migrate(ctx context.Context) error
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	log.Printf("connected to %s store", cfg.StoreDriver)

	if m, ok := repo.(migrator); ok && cfg.MigrateOnStart {
		if err := m.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate schema: %v", err)
		}
		log.Println("schema migrated")
	}

	// Seat cache is optional
	var (
		rdb   *redis.Client
		cache port.SeatCache
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		cache = storage.NewRedisAdapter(rdb, cfg.SeatCacheTTL)
		log.Println("connected to redis")
	}

	// Initialize services
	enrollmentService := service.NewEnrollmentService(repo, cache, cfg.TxMaxAttempts, cfg.TxRetryBackoff)
	queryService := service.NewQueryService(repo)
	activityService := service.NewActivityService(repo, cache)

	if cfg.SeedFile != "" {
		n, err := seedActivities(ctx, cfg.SeedFile, repo, activityService)
		if err != nil {
			log.Fatalf("failed to seed activities: %v", err)
		}
		log.Printf("seeded %d activities from %s", n, cfg.SeedFile)
	}

	authCfg := auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(
		auth.UnaryServerInterceptor(authCfg, healthpb.Health_Check_FullMethodName),
	))
	handler.RegisterEnrollmentServiceServer(grpcServer, handler.NewGRPCHandler(enrollmentService, queryService))
	healthpb.RegisterHealthServer(grpcServer, health.NewServer())

	lis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddress)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	mux := http.NewServeMux()
	handler.NewHTTPHandler(enrollmentService, queryService, activityService).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(authCfg, auth.PathSkipper("/api/health", "/metrics"))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           handler.RequestLogger(authMiddleware.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")

	if rdb != nil {
		rdb.Close()
	}
	closeStore()
	log.Println("connections closed")
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return storage.NewMemoryAdapter(cfg.LockWaitTimeout), func() {}, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return storage.NewPostgresAdapter(pool, cfg.LockWaitTimeout), pool.Close, nil

	default:
		dsn, err := storage.NormalizeMySQLDSN(cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQLConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		return storage.NewMySQLAdapter(db, cfg.LockWaitTimeout), func() { db.Close() }, nil
	}
}
