package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"pasar/internal/config"
	"pasar/internal/handlers"
	"pasar/internal/logger"
	"pasar/internal/repositories"
	"pasar/internal/services"
	"pasar/pkg/events"
	"pasar/pkg/kafka"
	"pasar/pkg/rabbitmq"
	"pasar/pkg/redisx"
)

// lowStockQueue receives inventory.low-stock events for restock alerts.
const lowStockQueue = "pasar.low-stock-alerts"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.L().Fatal("server stopped with error", zap.Error(err))
	}
	logger.L().Info("server gracefully stopped")
}

// application is the wired service graph behind the HTTP API and the workers.
type application struct {
	app         *fiber.App
	reconciler  *services.ReconciliationService
	settlements *services.SettlementService
}

// infra holds the optional external clients chosen by configuration.
type infra struct {
	brokers []events.Broker
	rdb     *redis.Client
	health  func() fiber.Map
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.L()

	db, err := repositories.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if err := repositories.Migrate(db); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	defer sqlDB.Close()

	var ext infra
	status := fiber.Map{"database": "connected", "events": cfg.EventSink, "sequence": "database"}

	switch cfg.EventSink {
	case "rabbitmq":
		mq, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Exchange: cfg.RabbitMQExchange, Logger: log})
		if err != nil {
			return err
		}
		defer mq.Close()
		if err := mq.Consume(lowStockQueue, []string{events.InventoryLowStock}, lowStockAlert(log)); err != nil {
			log.Warn("restock alerts disabled", zap.Error(err))
		}
		ext.brokers = append(ext.brokers, mq)
	case "kafka":
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer producer.Close()
		ext.brokers = append(ext.brokers, producer)
	}

	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			return err
		}
		ext.rdb = rdb
		status["sequence"] = "redis"
	}
	ext.health = func() fiber.Map {
		out := fiber.Map{}
		for k, v := range status {
			out[k] = v
		}
		if err := sqlDB.Ping(); err != nil {
			out["database"] = "unreachable"
		}
		return out
	}

	a := wire(cfg, db, ext)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", zap.String("port", cfg.AppPort))
		if err := a.app.Listen(cfg.AppPort); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		return a.app.ShutdownWithTimeout(10 * time.Second)
	})
	g.Go(func() error {
		every(gctx, cfg.ReconcileInterval, func(ctx context.Context) {
			res, err := a.reconciler.Sweep(ctx)
			if err != nil {
				log.Error("reconciliation sweep failed", zap.Error(err))
				return
			}
			if res.Released+res.Consumed > 0 {
				log.Info("reconciliation sweep",
					zap.Int("released", res.Released),
					zap.Int("consumed", res.Consumed),
					zap.Int("skipped", res.Skipped))
			}
		})
		return nil
	})
	g.Go(func() error {
		every(gctx, cfg.SettlementRetryInterval, func(ctx context.Context) {
			n, err := a.settlements.RetryPending(ctx)
			if err != nil {
				log.Error("settlement retry failed", zap.Error(err))
				return
			}
			if n > 0 {
				log.Info("pending settlements completed", zap.Int("count", n))
			}
		})
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// wire builds the service graph on db.
func wire(cfg *config.Config, db *gorm.DB, ext infra) *application {
	bus := events.NewBus(logger.L(), ext.brokers...)

	productRepo := repositories.NewGORMProductRepository(db)
	sellerRepo := repositories.NewGORMSellerRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)

	var sequencer services.Sequencer = repositories.NewGORMSequenceRepository(db)
	if ext.rdb != nil {
		sequencer = services.NewRedisSequencer(ext.rdb)
	}

	inventory := services.NewInventoryService(repositories.NewGORMInventoryRepository(db), productRepo, bus)
	carts := services.NewCartService(repositories.NewGORMCartRepository(db), productRepo, inventory, nil, cfg.GuestCartTTL)
	wallets := services.NewWalletService(repositories.NewGORMWalletRepository(db))
	settlements := services.NewSettlementService(
		repositories.NewGORMSettlementRepository(db),
		orderRepo,
		services.NewRateCommission(cfg.PlatformCommissionRate),
		wallets,
		cfg.PlatformWalletID,
		bus,
	)
	orders := services.NewOrderService(services.OrderDeps{
		Orders:     orderRepo,
		Sellers:    sellerRepo,
		Products:   productRepo,
		Carts:      carts,
		Inventory:  inventory,
		Wallets:    wallets,
		Sequencer:  sequencer,
		Settlement: settlements,
		Events:     bus,
		Location:   cfg.OrderNumberTZ,
	})

	app := handlers.NewApp(handlers.AppDeps{
		Auth:      services.NewAuthService(cfg.JWTSecret, 0),
		Products:  services.NewProductService(productRepo, sellerRepo, inventory),
		Carts:     carts,
		Inventory: inventory,
		Orders:    orders,
		Health:    ext.health,
		AccessLog: cfg.AppEnv != "production",
	})

	return &application{
		app:         app,
		reconciler:  services.NewReconciliationService(inventory, orderRepo, cfg.ReservationTimeout),
		settlements: settlements,
	}
}

// every runs fn on each tick until ctx is done. A non-positive interval
// disables the worker.
func every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// lowStockAlert logs a restock alert for every inventory.low-stock event.
func lowStockAlert(log *zap.Logger) func(msg amqp.Delivery) error {
	return func(msg amqp.Delivery) error {
		var evt struct {
			ID      string `json:"id"`
			Payload struct {
				ProductID       string `json:"productId"`
				VariantID       string `json:"variantId"`
				SellerID        string `json:"sellerId"`
				Available       int    `json:"available"`
				Threshold       int    `json:"threshold"`
				ReorderQuantity int    `json:"reorderQuantity"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return fmt.Errorf("malformed low-stock event: %w", err)
		}
		log.Warn("restock needed",
			zap.String("event_id", evt.ID),
			zap.String("product_id", evt.Payload.ProductID),
			zap.String("variant_id", evt.Payload.VariantID),
			zap.String("seller_id", evt.Payload.SellerID),
			zap.Int("available", evt.Payload.Available),
			zap.Int("threshold", evt.Payload.Threshold),
			zap.Int("reorder_quantity", evt.Payload.ReorderQuantity))
		return nil
	}
}
