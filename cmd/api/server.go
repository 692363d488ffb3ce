package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/finbase/exchange-core/config"
	"github.com/finbase/exchange-core/internal/amm"
	"github.com/finbase/exchange-core/internal/api/handlers"
	"github.com/finbase/exchange-core/internal/api/routes"
	"github.com/finbase/exchange-core/internal/fees"
	"github.com/finbase/exchange-core/internal/ledger"
	"github.com/finbase/exchange-core/internal/logger"
	"github.com/finbase/exchange-core/internal/marketdata"
	"github.com/finbase/exchange-core/internal/marketmaker"
	"github.com/finbase/exchange-core/internal/matching"
	"github.com/finbase/exchange-core/internal/settlement"
	"github.com/finbase/exchange-core/internal/storage"
	"github.com/finbase/exchange-core/internal/storage/memory"
	"github.com/finbase/exchange-core/internal/storage/postgres"
	"github.com/finbase/exchange-core/internal/storage/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting exchange core", zap.String("version", "1.0.0"))

	ctx := context.Background()
	deps, err := buildDependencies(ctx, cfg, log)
	if err != nil {
		log.Fatal("dependency wiring failed", zap.Error(err))
	}
	defer deps.close(log)

	books := matching.NewBooks()
	feeSchedule := fees.NewSchedule(cfg.Matching.MakerFeeBps, cfg.Matching.TakerFeeBps)
	engine := matching.NewEngine(deps.orders, books, feeSchedule, cfg.Matching.FallbackPrice, log)
	maintainer := matching.NewMaintainer(books, deps.orders, log)

	saga := settlement.NewSaga(
		deps.orders, deps.trades, deps.sagaLog, deps.ledger,
		engine, maintainer, books,
		settlement.Config{
			MaxIterations:  cfg.Matching.MaxIterations,
			SlippageBuffer: cfg.Settlement.SlippageBuffer,
			FallbackPrice:  cfg.Matching.FallbackPrice,
		},
		log,
	)

	poolService := amm.NewService(deps.pools, deps.ledger, amm.AllowAll{}, cfg.AMM.RatioTolerance, log)
	feed := marketdata.NewBookFeed(books, deps.trades)

	mmCtx, mmCancel := context.WithCancel(ctx)
	defer mmCancel()
	if cfg.MarketMaker.Enabled {
		startMarketMakers(mmCtx, cfg, deps.pools, feed, saga, log)
	}

	handler := handlers.New(saga, poolService, deps.pools, deps.orders, deps.trades, books, feed,
		handlers.Config{
			OrderBookDepth:    cfg.API.OrderBookDepth,
			DefaultTradeLimit: cfg.API.DefaultTradeLimit,
			MaxTradeLimit:     cfg.API.MaxTradeLimit,
		}, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      routes.Setup(handler, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	mmCancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server exited")
}

// dependencies holds the storage and ledger backends chosen by configuration
type dependencies struct {
	orders  storage.OrderStore
	trades  storage.TradeStore
	pools   storage.PoolStore
	sagaLog storage.SagaStore
	ledger  ledger.Ledger
}

func (d *dependencies) close(log *zap.Logger) {
	for _, c := range []interface{ Close() error }{d.orders, d.trades, d.pools, d.sagaLog} {
		if err := c.Close(); err != nil {
			log.Warn("store close failed", zap.Error(err))
		}
	}
}

// buildDependencies wires PostgreSQL-backed stores and ledger when the
// database is enabled, in-memory backends otherwise, and layers the Redis
// trade cache on top when configured.
func buildDependencies(ctx context.Context, cfg *config.Config, log *zap.Logger) (*dependencies, error) {
	deps := &dependencies{
		orders:  memory.NewOrderStore(),
		trades:  memory.NewTradeStore(cfg.Memory.MaxTrades),
		pools:   memory.NewPoolStore(),
		sagaLog: memory.NewSagaStore(),
		ledger:  ledger.NewMemoryLedger(),
	}

	if cfg.Database.Enabled {
		pool, err := postgres.NewPool(ctx, postgres.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			Name:            cfg.Database.Name,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			MaxConns:        cfg.Database.MaxConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			SSLMode:         cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}

		deps.orders = postgres.NewOrderStore(pool)
		deps.pools = postgres.NewPoolStore(pool)
		deps.sagaLog = postgres.NewSagaStore(pool)

		pgLedger, err := ledger.NewPostgresLedger(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("initialize ledger: %w", err)
		}
		deps.ledger = pgLedger

		log.Info("postgres storage enabled",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Name))
	}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, redis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("redis unavailable, keeping in-memory trade cache", zap.Error(err))
		} else {
			deps.trades = redis.NewTradeStore(client, int64(cfg.Redis.MaxTrades), cfg.Redis.TradeTTL)
			log.Info("redis trade cache enabled",
				zap.String("host", cfg.Redis.Host),
				zap.Int("port", cfg.Redis.Port))
		}
	}

	return deps, nil
}

// startMarketMakers launches one quoting loop per active pool
func startMarketMakers(ctx context.Context, cfg *config.Config, pools storage.PoolStore, feed marketdata.Feed, saga *settlement.Saga, log *zap.Logger) {
	active, err := pools.Active()
	if err != nil {
		log.Error("failed to list pools for market making", zap.Error(err))
		return
	}

	mmCfg := marketmaker.Config{
		Interval:           cfg.MarketMaker.Interval,
		BaseSpreadBps:      int64(cfg.MarketMaker.BaseSpreadBps),
		Levels:             cfg.MarketMaker.Levels,
		OrderSizeFraction:  cfg.MarketMaker.OrderSizeFraction,
		TargetBaseRatio:    cfg.MarketMaker.TargetBaseRatio,
		InventoryTolerance: cfg.MarketMaker.InventoryTolerance,
		VolatilityWindow:   cfg.MarketMaker.VolatilityWindow,
	}

	for _, pool := range active {
		controller := marketmaker.NewController(pool.ID, pools, feed, saga, mmCfg, log)
		go controller.Run(ctx)
		log.Info("market maker started", zap.String("pool_id", pool.ID.String()))
	}
}
