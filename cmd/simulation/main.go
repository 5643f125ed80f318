package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/stocktrader/stocktrader-api/internal/auth"
	"github.com/stocktrader/stocktrader-api/internal/config"
	"github.com/stocktrader/stocktrader-api/internal/database"
	"github.com/stocktrader/stocktrader-api/internal/orders"
	"github.com/stocktrader/stocktrader-api/internal/portfolio"
	"github.com/stocktrader/stocktrader-api/internal/stocks"
	"github.com/stocktrader/stocktrader-api/pkg/middleware"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numTraders    = 5
	serverAddress = "http://localhost:8080"
	jwtSecret     = "simulation-secret-key"
)

var symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	mu         sync.Mutex
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// trader is one simulated user: its own account, JWT, and HTTP client.
type trader struct {
	username  string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newTrader registers a fresh account against the API and logs it in.
func newTrader(id int, stats map[string]*routeStats) (*trader, error) {
	t := &trader{
		username: fmt.Sprintf("sim_trader_%d_%d", id, time.Now().UnixNano()),
		client:   &http.Client{Timeout: 10 * time.Second},
		stats:    stats,
	}

	if err := t.register(); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	token, err := t.login()
	if err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	t.authToken = token

	return t, nil
}

func (t *trader) register() error {
	start := time.Now()
	defer func() {
		t.stats["register"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(map[string]string{
		"username": t.username,
		"email":    t.username + "@simulation.test",
		"password": "simulated-password",
	})
	if err != nil {
		return err
	}

	resp, err := t.client.Post(
		fmt.Sprintf("%s/api/v1/auth/register", serverAddress),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registration failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func (t *trader) login() (string, error) {
	start := time.Now()
	defer func() {
		t.stats["login"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(map[string]string{
		"username": t.username,
		"password": "simulated-password",
	})
	if err != nil {
		return "", err
	}

	resp, err := t.client.Post(
		fmt.Sprintf("%s/api/v1/auth/login", serverAddress),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("login failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// orderOutcome captures one placement attempt for the summary.
type orderOutcome struct {
	symbol string
	side   string
	value  decimal.Decimal
	code   string
	filled bool
}

// placeOrder submits a market buy or sell and returns the outcome.
func (t *trader) placeOrder(symbol, side string, quantity int64) (*orderOutcome, error) {
	statKey := "buy"
	path := "buy"
	if side == "SELL" {
		statKey = "sell"
		path = "sell"
	}
	start := time.Now()
	defer func() {
		t.stats[statKey].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(map[string]interface{}{
		"symbol":   symbol,
		"quantity": quantity,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/orders/%s", serverAddress, path),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Place order response")

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			OrderID        string          `json:"order_id"`
			NewCashBalance decimal.Decimal `json:"new_cash_balance"`
			PriceFilled    decimal.Decimal `json:"price_filled"`
			QuantityFilled int64           `json:"quantity_filled"`
		} `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	outcome := &orderOutcome{symbol: symbol, side: side, filled: result.Success}
	if result.Success {
		outcome.value = result.Data.PriceFilled.Mul(decimal.NewFromInt(result.Data.QuantityFilled))
	} else if result.Error != nil {
		outcome.code = result.Error.Code
	}

	return outcome, nil
}

// getPortfolio fetches the trader's portfolio snapshot.
func (t *trader) getPortfolio() (decimal.Decimal, int, error) {
	start := time.Now()
	defer func() {
		t.stats["portfolio"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/portfolio", serverAddress),
		nil,
	)
	if err != nil {
		return decimal.Zero, 0, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.authToken))

	resp, err := t.client.Do(req)
	if err != nil {
		return decimal.Zero, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, 0, fmt.Errorf("get portfolio failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			TotalPortfolioValue decimal.Decimal `json:"total_portfolio_value"`
			Holdings            []struct {
				Symbol string `json:"symbol"`
			} `json:"holdings"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data.TotalPortfolioValue, len(result.Data.Holdings), nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func printPerformanceStats(stats map[string]*routeStats) {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, rs := range stats {
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			rs.name,
			rs.totalCalls,
			rs.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the trading simulation
// It starts a local API server and simulates multiple concurrent traders
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	stats := map[string]*routeStats{
		"register":  {name: "Register"},
		"login":     {name: "Login"},
		"buy":       {name: "Buy Order"},
		"sell":      {name: "Sell Order"},
		"portfolio": {name: "Get Portfolio"},
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Int("traders", numTraders).Msg("Starting simulation")

	summary := struct {
		mu           sync.Mutex
		TotalOrders  int
		FilledOrders int
		Rejections   map[string]int
		TotalValue   decimal.Decimal
		Symbols      map[string]int
		Sides        map[string]int
		StartTime    time.Time
	}{
		StartTime:  time.Now(),
		Rejections: make(map[string]int),
		Symbols:    make(map[string]int),
		Sides:      make(map[string]int),
	}

	var wg sync.WaitGroup
	for i := 0; i < numTraders; i++ {
		wg.Add(1)
		go func(traderID int) {
			defer wg.Done()

			t, err := newTrader(traderID, stats)
			if err != nil {
				log.Error().Err(err).Int("trader_id", traderID).Msg("Failed to initialize trader")
				return
			}

			for j := 0; j < targetOrders/numTraders; j++ {
				symbol := symbols[rand.Intn(len(symbols))]
				side := "BUY"
				// Bias towards buys so sells have something to realize
				if rand.Intn(3) == 0 {
					side = "SELL"
				}
				quantity := int64(rand.Intn(20) + 1)

				outcome, err := t.placeOrder(symbol, side, quantity)
				if err != nil {
					log.Error().Err(err).Int("trader_id", traderID).Msg("Failed to place order")
					if side == "SELL" {
						stats["sell"].addFailure()
					} else {
						stats["buy"].addFailure()
					}
					continue
				}

				summary.mu.Lock()
				summary.TotalOrders++
				summary.Symbols[symbol]++
				summary.Sides[side]++
				if outcome.filled {
					summary.FilledOrders++
					summary.TotalValue = summary.TotalValue.Add(outcome.value)
				} else {
					summary.Rejections[outcome.code]++
				}
				summary.mu.Unlock()

				if outcome.filled {
					log.Info().
						Int("trader_id", traderID).
						Str("symbol", symbol).
						Str("side", side).
						Int64("quantity", quantity).
						Str("value", outcome.value.String()).
						Msg("Order filled")
				} else {
					log.Info().
						Int("trader_id", traderID).
						Str("symbol", symbol).
						Str("side", side).
						Str("code", outcome.code).
						Msg("Order rejected")
				}

				time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
			}

			value, positions, err := t.getPortfolio()
			if err != nil {
				log.Error().Err(err).Int("trader_id", traderID).Msg("Failed to fetch portfolio")
				stats["portfolio"].addFailure()
				return
			}
			log.Info().
				Int("trader_id", traderID).
				Str("total_value", value.String()).
				Int("positions", positions).
				Msg("Final portfolio")
		}(i)
	}

	wg.Wait()

	// Print summary
	duration := time.Since(summary.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚀 TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
📊 Order Statistics
------------------
Total Orders:  %d
Filled:        %d
Rejected:      %d
Total Value:   $%s
Duration:      %v

📈 Symbol Distribution
--------------------
`, summary.TotalOrders, summary.FilledOrders, summary.TotalOrders-summary.FilledOrders,
		summary.TotalValue.StringFixed(2), duration.Round(time.Millisecond))

	maxSymbolCount := 0
	for _, count := range summary.Symbols {
		if count > maxSymbolCount {
			maxSymbolCount = count
		}
	}
	for symbol, count := range summary.Symbols {
		barLength := int(float64(count) / float64(maxSymbolCount) * 20)
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-6s: %s (%d)\n", symbol, bar, count)
	}

	fmt.Println("\n📉 Side Distribution")
	fmt.Println("------------------")
	for side, count := range summary.Sides {
		barLength := int(float64(count) / float64(summary.TotalOrders) * 20)
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-4s: %s (%d)\n", side, bar, count)
	}

	if len(summary.Rejections) > 0 {
		fmt.Println("\n🚫 Rejections by Reason")
		fmt.Println("---------------------")
		for code, count := range summary.Rejections {
			fmt.Printf("%-22s: %d\n", code, count)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	fillRate := float64(summary.FilledOrders) / float64(summary.TotalOrders) * 100
	log.Info().
		Float64("fill_rate", fillRate).
		Int("total_orders", summary.TotalOrders).
		Str("total_value", summary.TotalValue.StringFixed(2)).
		Dur("duration", duration).
		Msg("Simulation completed")

	printPerformanceStats(stats)
}

// startServer initializes and starts the trading API server
// Sets up all required services, handlers and routes
func startServer() error {
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	cache, err := stocks.NewCache(config.Load().RedisAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Quote cache disabled for simulation")
	}

	authService := auth.NewService(db, jwtSecret)
	stocksService := stocks.NewService(db, cache)
	ordersService := orders.NewService(db)
	portfolioService := portfolio.NewService(db)

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	stocksHandlers := stocks.NewGinHandlers(stocksService)
	ordersHandlers := orders.NewGinHandlers(ordersService)
	portfolioHandlers := portfolio.NewGinHandlers(portfolioService)

	setupRoutes(router, authHandlers, stocksHandlers, ordersHandlers, portfolioHandlers)

	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	stocksHandlers *stocks.GinHandlers,
	ordersHandlers *orders.GinHandlers,
	portfolioHandlers *portfolio.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/login", authHandlers.LoginHandler())
		}

		ordersGroup := v1.Group("/orders")
		ordersGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			ordersGroup.POST("/buy", ordersHandlers.BuyOrderHandler())
			ordersGroup.POST("/sell", ordersHandlers.SellOrderHandler())
			ordersGroup.GET("", ordersHandlers.ListOrdersHandler())
			ordersGroup.GET("/:order_id", ordersHandlers.GetOrderHandler())
		}

		portfolioGroup := v1.Group("/portfolio")
		portfolioGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			portfolioGroup.GET("", portfolioHandlers.PortfolioHandler())
		}

		stocksGroup := v1.Group("/stocks")
		stocksGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			stocksGroup.GET("", stocksHandlers.ListStocksHandler())
			stocksGroup.GET("/:symbol", stocksHandlers.GetStockHandler())
			stocksGroup.GET("/:symbol/quote", stocksHandlers.QuoteHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.PUT("/stocks/:symbol/price", stocksHandlers.UpdatePriceHandler())
		}
	}
}
