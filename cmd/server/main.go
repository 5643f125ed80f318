package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/stocktrader/stocktrader-api/internal/auth"
	"github.com/stocktrader/stocktrader-api/internal/config"
	"github.com/stocktrader/stocktrader-api/internal/database"
	"github.com/stocktrader/stocktrader-api/internal/orders"
	"github.com/stocktrader/stocktrader-api/internal/portfolio"
	"github.com/stocktrader/stocktrader-api/internal/stocks"
	"github.com/stocktrader/stocktrader-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the stock trading API server with graceful
// shutdown support.
func main() {
	cfg := config.Load()

	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	cache, err := stocks.NewCache(cfg.RedisAddr)
	if err != nil {
		zlog.Warn().Err(err).Msg("Quote cache disabled, serving prices from the database")
	}

	router := gin.Default()

	authService := auth.NewService(db, cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)

	stocksService := stocks.NewService(db, cache)
	stocksHandlers := stocks.NewGinHandlers(stocksService)

	ordersService := orders.NewService(db)
	ordersHandlers := orders.NewGinHandlers(ordersService)

	portfolioService := portfolio.NewService(db)
	portfolioHandlers := portfolio.NewGinHandlers(portfolioService)

	router.Use(middleware.RateLimit())

	setupRoutes(router, cfg.JWTSecret, authHandlers, stocksHandlers, ordersHandlers, portfolioHandlers)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for registration and login
// - Order/portfolio/stock routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	stocksHandlers *stocks.GinHandlers,
	ordersHandlers *orders.GinHandlers,
	portfolioHandlers *portfolio.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/login", authHandlers.LoginHandler())
		}

		// Order routes
		ordersGroup := v1.Group("/orders")
		ordersGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			ordersGroup.POST("/buy", ordersHandlers.BuyOrderHandler())
			ordersGroup.POST("/sell", ordersHandlers.SellOrderHandler())
			ordersGroup.GET("", ordersHandlers.ListOrdersHandler())
			ordersGroup.GET("/:order_id", ordersHandlers.GetOrderHandler())
		}

		// Portfolio routes
		portfolioGroup := v1.Group("/portfolio")
		portfolioGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			portfolioGroup.GET("", portfolioHandlers.PortfolioHandler())
		}

		// Stock catalog routes
		stocksGroup := v1.Group("/stocks")
		stocksGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			stocksGroup.GET("", stocksHandlers.ListStocksHandler())
			stocksGroup.GET("/:symbol", stocksHandlers.GetStockHandler())
			stocksGroup.GET("/:symbol/quote", stocksHandlers.QuoteHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.PUT("/stocks/:symbol/price", stocksHandlers.UpdatePriceHandler())
		}
	}
}
