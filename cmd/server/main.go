package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/jonzyyyy/CS50-Finance/internal/config"
	"github.com/jonzyyyy/CS50-Finance/internal/database"
	"github.com/jonzyyyy/CS50-Finance/internal/logger"
	"github.com/jonzyyyy/CS50-Finance/internal/portfolio"
	"github.com/jonzyyyy/CS50-Finance/internal/quotes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Optional .env for local development; viper handles the rest.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Quote provider with cache-aside layer. Redis when configured,
	// in-process otherwise.
	client := quotes.NewClient(&cfg.Quotes, log)
	var cache quotes.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		cache = quotes.NewRedisCache(rdb, cfg.Quotes.CacheTTL)
		log.Info("Quote cache backed by redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		cache = quotes.NewMemoryCache(cfg.Quotes.CacheTTL)
	}
	provider := quotes.NewCachingProvider(client, cache, log)

	// Portfolio engine
	engine := portfolio.NewService(db, provider, log, decimal.NewFromFloat(cfg.Ledger.InitialCash))

	apiHandler := NewAPIHandler(log, engine, &cfg.Auth)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting web server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, apiHandler.Routes()); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
