package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/numvend/numvend/internal/config"
	"github.com/numvend/numvend/internal/logging"
	"github.com/numvend/numvend/internal/provider"
	"github.com/numvend/numvend/internal/repositories"
	"github.com/numvend/numvend/internal/services"
	"github.com/numvend/numvend/internal/utils/httpclient"
	"go.uber.org/zap"
)

// The sweeper runs the expiry sweep as a standalone process, either
// once (for cron) or as a long-running loop. All sweep transitions are
// state-guarded, so running it alongside the API's built-in scheduler
// is safe.
func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Initialize logging
	if err := logging.InitLogger(); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	logging.Logger.Info("Starting numvend sweeper")

	// Initialize Redis
	config.InitRedis()
	if config.Redis == nil {
		log.Fatal("Failed to initialize Redis client")
	}

	// Initialize MongoDB
	config.InitMongoDB()
	if config.MongoDB == nil {
		log.Fatal("Failed to initialize MongoDB")
	}

	// Repositories
	accounts := repositories.NewAccountRepository(config.MongoDB, config.AppConfig.AccountCollection)
	transactions := repositories.NewTransactionRepository(config.MongoDB, config.AppConfig.TransactionCollection)
	verifications := repositories.NewVerificationRepository(config.MongoDB, config.AppConfig.VerificationCollection)
	rentals := repositories.NewRentalRepository(config.MongoDB, config.AppConfig.RentalCollection)

	// Provider client without breaker persistence; the API owns the
	// operational snapshots.
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
	}, tokens, pool, nil)

	// Services
	ledger := services.NewLedgerService(accounts, transactions)
	verificationService := services.NewVerificationService(ledger, verifications, client, config.AppConfig.VerificationTTL)
	rentalService := services.NewRentalService(ledger, rentals, client, config.AppConfig.BulkRentalMinCount)

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

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), config.AppConfig.SweepInterval)
		defer cancel()
		if err := scheduler.Sweep(ctx); err != nil {
			logging.Logger.Error("sweep failed", zap.Error(err))
			os.Exit(1)
		}
		logging.Logger.Info("sweep completed")
		return
	}

	// Run the sweep loop until signalled
	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logging.Logger.Info("Shutdown signal received")

	scheduler.Stop()

	logging.Logger.Info("numvend sweeper stopped")
}
