package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/numvend/numvend/internal/config"
	"github.com/numvend/numvend/internal/handlers"
	"github.com/numvend/numvend/internal/logging"
	"github.com/numvend/numvend/internal/middleware"
	"github.com/numvend/numvend/internal/observability"
	"github.com/numvend/numvend/internal/provider"
	"github.com/numvend/numvend/internal/repositories"
	"github.com/numvend/numvend/internal/services"
	"github.com/numvend/numvend/internal/utils/httpclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// @title           numvend API
// @version         1.0
// @description     Verification and number-rental resale API. Accounts hold a prepaid balance; verifications and rentals are charged up front and refunded by lifecycle rules.

// @host      localhost:8080
// @BasePath  /v1

// @tag.name accounts
// @tag.description Balance and ledger operations

// @tag.name verifications
// @tag.description Single-use verification lifecycle

// @tag.name rentals
// @tag.description Number rental lifecycle

func main() {
	// Initialize logger first
	if err := logging.InitLogger(); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logging.Logger.Fatal("failed to load config", zap.Error(err))
	}

	// Initialize observability; the service runs untraced when the
	// collector is unreachable
	if err := observability.InitTracer(); err != nil {
		logging.Logger.Warn("tracing unavailable", zap.Error(err))
	}
	defer observability.ShutdownTracer()

	// Initialize database connections
	config.InitMongoDB()
	config.InitRedis()

	// Repositories
	accounts := repositories.NewAccountRepository(config.MongoDB, config.AppConfig.AccountCollection)
	transactions := repositories.NewTransactionRepository(config.MongoDB, config.AppConfig.TransactionCollection)
	verifications := repositories.NewVerificationRepository(config.MongoDB, config.AppConfig.VerificationCollection)
	rentals := repositories.NewRentalRepository(config.MongoDB, config.AppConfig.RentalCollection)
	breakers := repositories.NewBreakerRepository(config.MongoDB, config.AppConfig.BreakerCollection)

	// Provider client
	pool := httpclient.NewHTTPClientPool(10, config.AppConfig.ProviderCallTimeout)
	defer pool.Close()

	tokens := provider.NewTokenManager(
		config.AppConfig.ProviderBaseURL,
		config.AppConfig.ProviderAPIKey,
		provider.NewRedisTokenCache(config.Redis),
		pool,
	)
	client := provider.NewClient(provider.ClientConfig{
		BaseURL:     config.AppConfig.ProviderBaseURL,
		CallTimeout: config.AppConfig.ProviderCallTimeout,
		Retry: provider.RetryPolicy{
			MaxAttempts: config.AppConfig.ProviderMaxAttempts,
			BaseDelay:   config.AppConfig.ProviderBaseDelay,
			MaxDelay:    config.AppConfig.ProviderMaxDelay,
		},
		Breaker: provider.BreakerConfig{
			FailureThreshold: config.AppConfig.BreakerFailureThreshold,
			SuccessThreshold: config.AppConfig.BreakerSuccessThreshold,
			Cooldown:         config.AppConfig.BreakerCooldown,
		},
	}, tokens, pool, breakers)

	// Services
	ledger := services.NewLedgerService(accounts, transactions)
	verificationService := services.NewVerificationService(ledger, verifications, client, config.AppConfig.VerificationTTL)
	rentalService := services.NewRentalService(ledger, rentals, client, config.AppConfig.BulkRentalMinCount)

	// Background expiry sweep
	scheduler := services.NewExpiryScheduler(
		verificationService,
		rentalService,
		verifications,
		rentals,
		services.NewRedisWarningFlags(config.Redis),
		nil,
		config.AppConfig.SweepInterval,
		config.AppConfig.ExpiryWarnWindow,
	)
	scheduler.Start()
	defer scheduler.Stop()

	// Set Gin mode
	if config.AppConfig.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router with middleware
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.RequestTracker(),
		middleware.RequestTiming(),
		cors.Default(),
	)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	handlers.New(ledger, verificationService, rentalService, breakers).RegisterRoutes(router)

	// Create server with timeouts
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.AppConfig.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logging.Logger.Info("starting server",
			zap.Int("port", config.AppConfig.Port),
			zap.String("environment", config.AppConfig.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logging.Logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Logger.Error("forced shutdown", zap.Error(err))
	}
	logging.Logger.Info("server stopped")
}
