package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/curvebond/curvegate/internal/config"
	"github.com/curvebond/curvegate/internal/handler"
	"github.com/curvebond/curvegate/internal/marketmaker"
	"github.com/curvebond/curvegate/internal/middleware"
	"github.com/curvebond/curvegate/internal/pkg/logger"
	"github.com/curvebond/curvegate/internal/registry"
	"github.com/curvebond/curvegate/internal/repository"
	"github.com/curvebond/curvegate/internal/reserve"
	"github.com/curvebond/curvegate/internal/service"
	"github.com/curvebond/curvegate/internal/tap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

func main() {
	// 0. Initialize Logger
	logger.Init("info")

	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Persistence
	// Event journal mirror (Redis > nothing)
	var sinks []service.EventSink
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
			sinks = append(sinks, repository.NewRedisEventSink(redisClient, cfg.Redis.EventListKey, cfg.Redis.EventListMax))
		} else {
			logger.Error("⚠️ Failed to connect to Redis, events will not be mirrored", "error", err)
		}
	}

	// Event persistence (Postgres > Local File)
	var eventRepo service.EventRepo
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
			eventRepo = repository.NewPostgresEventRepo(db)
		} else {
			logger.Error("⚠️ Failed to connect to DB, events will be file-only", "error", err)
		}
	}

	// 3. Initialize Core Services
	beneficiary := common.HexToAddress(cfg.Market.Beneficiary)
	buyFee := mustDecimal(cfg.Market.BuyFeePct, "market.buy_fee_pct")
	sellFee := mustDecimal(cfg.Market.SellFeePct, "market.sell_fee_pct")

	reg := registry.New()
	vault := reserve.NewVault()
	bonded := reserve.NewBondedToken()
	mm := marketmaker.New(marketmaker.Config{
		BatchWindow: cfg.Market.BatchWindowSeconds,
		BuyFeePct:   buyFee,
		SellFeePct:  sellFee,
		Beneficiary: beneficiary,
	}, reg, vault, bonded)

	tp := tap.New(tap.Config{
		Beneficiary:         beneficiary,
		Cooldown:            cfg.Tap.CooldownSeconds,
		MaxRateIncreasePct:  mustDecimal(cfg.Tap.MaxRateIncreasePct, "tap.max_rate_increase_pct"),
		MaxFloorDecreasePct: mustDecimal(cfg.Tap.MaxFloorDecreasePct, "tap.max_floor_decrease_pct"),
	}, vault, mm)

	journal, err := service.NewEventJournal(cfg.Events.LogDir, eventRepo, sinks...)
	if err != nil {
		log.Fatalf("Failed to initialize event journal: %v", err)
	}

	ctrl := service.NewController(mm, tp, service.SystemClock{}, journal)
	seed(cfg, ctrl)

	// 4. Initialize Handlers
	marketHandler := handler.NewMarketHandler(ctrl)
	collateralHandler := handler.NewCollateralHandler(ctrl)
	tapHandler := handler.NewTapHandler(ctrl)
	eventsHandler := handler.NewEventsHandler(journal)

	// 5. Setup Router
	r := gin.Default()

	// Global Middleware
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "curvegate"})
	})

	// Metrics Endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API V1 Routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg))
	v1.Use(middleware.RateLimitMiddleware(cfg))
	{
		v1.POST("/orders/buy", marketHandler.OpenBuyOrder)
		v1.POST("/orders/sell", marketHandler.OpenSellOrder)
		v1.POST("/claims/buy", marketHandler.ClaimBuy)
		v1.POST("/claims/sell", marketHandler.ClaimSell)
		v1.POST("/batches/clear", marketHandler.ClearBatches)
		v1.GET("/batches/:collateral/:id", marketHandler.GetBatch)
		v1.GET("/collaterals", collateralHandler.List)
		v1.GET("/taps/:token", tapHandler.Get)
		v1.GET("/taps/:token/max-withdrawal", tapHandler.MaximumWithdrawal)
		v1.GET("/events", eventsHandler.List)
		v1.GET("/events/ws", eventsHandler.Stream)
	}

	// Governance Routes
	admin := v1.Group("")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.POST("/collaterals", collateralHandler.Add)
		admin.PUT("/collaterals/:token", collateralHandler.Update)
		admin.DELETE("/collaterals/:token", collateralHandler.Remove)
		admin.PUT("/fees", marketHandler.UpdateFees)
		admin.POST("/taps", tapHandler.Add)
		admin.PUT("/taps/:token", tapHandler.Update)
		admin.POST("/taps/:token/reset", tapHandler.Reset)
		admin.DELETE("/taps/:token", tapHandler.Remove)
		admin.POST("/taps/:token/withdraw", tapHandler.Withdraw)
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 CurveGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	journal.Close()

	logger.Info("Server exiting")
}

// seed whitelists collaterals and opens taps from the config so a fresh
// instance starts with a working market.
func seed(cfg *config.Config, ctrl *service.Controller) {
	for _, col := range cfg.Collaterals {
		token := common.HexToAddress(col.Token)
		_, err := ctrl.AddCollateral(
			token,
			mustDecimal(orZero(col.VirtualSupply), "collateral virtual_supply"),
			mustDecimal(orZero(col.VirtualBalance), "collateral virtual_balance"),
			col.ReserveRatioPPM,
			mustDecimal(orZero(col.Slippage), "collateral slippage"),
		)
		if err != nil {
			logger.Error("failed to seed collateral", "token", col.Token, "error", err.Error())
			continue
		}
		logger.Info("collateral whitelisted", "token", token.Hex(), "reserve_ratio_ppm", col.ReserveRatioPPM)
	}
	for _, tapped := range cfg.Taps {
		token := common.HexToAddress(tapped.Token)
		_, err := ctrl.AddTappedToken(
			token,
			mustDecimal(tapped.Rate, "tap rate"),
			mustDecimal(orZero(tapped.Floor), "tap floor"),
		)
		if err != nil {
			logger.Error("failed to seed tap", "token", tapped.Token, "error", err.Error())
			continue
		}
		logger.Info("tap opened", "token", token.Hex(), "rate", tapped.Rate)
	}
}

func mustDecimal(s, field string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	out, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("Invalid decimal for %s: %v", field, err)
	}
	return out
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
