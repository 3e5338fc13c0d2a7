package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orderhub/internal/api"
	"orderhub/internal/auth"
	"orderhub/internal/config"
	"orderhub/internal/database"
	"orderhub/internal/events"
	"orderhub/internal/logger"
	"orderhub/internal/monitoring"
	"orderhub/internal/realtime"
	"orderhub/internal/session"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

// orderStore is what both the realtime router and the HTTP surface read and write
type orderStore interface {
	session.OrderStore
	Close() error
}

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort != 0 {
		cfg.Server.MetricsPort = *metricsPort
	}

	if err := logger.Initialize(cfg.Log.Level, cfg.Log.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Log.Sync()
	if cfg.Log.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Initialize metrics collector
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	monitor := monitoring.NewMonitor(reg)

	hub := realtime.NewHub(monitor)
	var broadcaster session.Broadcaster = hub
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer client.Close()
		relay := realtime.NewRedisRelay(hub, client, cfg.Redis.Channel)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Log.Error("redis relay stopped", zap.Error(err))
			}
		}()
		broadcaster = relay
		logger.Log.Info("redis relay enabled", zap.String("addr", cfg.Redis.Addr))
	}

	opts := []session.Option{session.WithObserver(monitor)}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Log.Warn("order events disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			opts = append(opts, session.WithNotifier(publisher))
			logger.Log.Info("order events enabled", zap.String("exchange", cfg.RabbitMQ.Exchange))
		}
	}

	if cfg.Admin.Password == "" {
		logger.Log.Warn("admin password not configured, admin login is disabled")
	}
	admin := auth.NewAdmin(cfg.Admin.Password, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)

	router := session.NewRouter(store, broadcaster, admin, opts...)
	endpoint := realtime.NewEndpoint(hub, router, cfg.Server.AllowedOrigin)

	// Initialize API server
	orderAPI := api.NewOrderAPI(store, admin, endpoint)

	// Start metrics server
	metricsServer := startMetricsServer(cfg.Server.MetricsPort, reg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: orderAPI.Router,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Log.Info("Shutting down servers...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("API server shutdown error", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("metrics server shutdown error", zap.Error(err))
		}
		hub.Close()

		cancel() // Cancel main context
	}()

	// Start server
	logger.Log.Info("Starting API server", zap.Int("port", cfg.Server.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Log.Fatal("API server error", zap.Error(err))
	}
	<-done
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (orderStore, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return database.OpenMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		db, err := database.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return database.NewOrderStore(db), nil
	}
}

func startMetricsServer(port int, reg *prometheus.Registry) *http.Server {
	metricsRouter := gin.New()
	metricsRouter.Use(gin.Recovery())
	metricsRouter.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: metricsRouter,
	}

	go func() {
		logger.Log.Info("Starting metrics server", zap.Int("port", port))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Log.Error("metrics server error", zap.Error(err))
		}
	}()
	return metricsServer
}
