package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/banking/docs"
	"github.com/ruralpay/banking/internal/config"
	"github.com/ruralpay/banking/internal/database"
	"github.com/ruralpay/banking/internal/handlers"
	mW "github.com/ruralpay/banking/internal/middleware"
	"github.com/ruralpay/banking/internal/repository"
	"github.com/ruralpay/banking/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Banking Ledger API
// @version 1.0
// @description Deposits, withdrawals and transfers recorded in an append-only ledger
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	v := viper.New()
	cfg, err := config.Load(v)
	logger := newLogger(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	ctx := context.Background()

	var uow repository.UnitOfWorkFactory
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		uow = repository.NewMemoryStore()
	default:
		db := initPostgres(ctx, v, logger)
		defer db.Close()
		uow = repository.NewPostgresUnitOfWork(db, logger)
	}

	var settlement services.SettlementPublisher
	redisClient := database.InitRedis(ctx, v, logger)
	if redisClient != nil {
		defer redisClient.Close()
		settlement = services.NewSettlementService(redisClient, logger, services.SettlementOptions{
			Queue:    cfg.Ledger.SettlementQueue,
			Currency: cfg.Ledger.Currency,
			BankBIC:  cfg.Ledger.BankBIC,
		})
	}

	processor := services.NewTransactionProcessor(uow, settlement, logger, services.ProcessorOptions{
		OperationTimeout: cfg.Ledger.OperationTimeout,
		MaxRetries:       cfg.Ledger.MaxRetries,
	})
	accountService := services.NewAccountService(uow, logger, cfg.Ledger.OperationTimeout)

	transactionHandler := handlers.NewTransactionHandler(processor, logger)
	accountHandler := handlers.NewAccountHandler(accountService, logger)
	auth, err := mW.NewAuthenticator(cfg.JWTSecretKey, redisCmdable(redisClient), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure authentication")
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/accounts", accountHandler.CreateAccount)
		r.Get("/accounts/{accountNumber}", accountHandler.GetAccount)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware)

			r.Post("/transactions", transactionHandler.CreateTransaction)
			r.Get("/transactions/{id}", transactionHandler.GetTransaction)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return
	}

	logger.Info("Server stopped")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg == nil {
		return logger
	}
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func initPostgres(ctx context.Context, v *viper.Viper, logger *logrus.Logger) *sql.DB {
	db, err := database.InitDB(ctx, database.GetConfig(v), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	if err := database.Migrate(ctx, db); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}
	return db
}

// redisCmdable keeps a nil client from becoming a non-nil interface.
func redisCmdable(client *redis.Client) redis.Cmdable {
	if client == nil {
		return nil
	}
	return client
}
