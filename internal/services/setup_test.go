package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pasar/internal/models"
	"pasar/internal/repositories"
	"pasar/internal/services"
	"pasar/pkg/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const platformWallet = "platform"

// testEnv wires every service against an isolated in-memory SQLite database.
type testEnv struct {
	db          *gorm.DB
	products    *repositories.GORMProductRepository
	sellers     *repositories.GORMSellerRepository
	invRepo     *repositories.GORMInventoryRepository
	orderRepo   *repositories.GORMOrderRepository
	walletRepo  *repositories.GORMWalletRepository
	settleRepo  *repositories.GORMSettlementRepository
	inventory   *services.InventoryService
	carts       *services.CartService
	wallets     *services.WalletService
	settlements *services.SettlementService
	orders      *services.OrderService
	recorder    *events.Recorder
}

type envOption func(*services.OrderDeps)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := repositories.Open("sqlite", dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serializes writers the way row locks would.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, repositories.Migrate(db))
	return db
}

// newConcurrentTestDB opens a file-backed SQLite database in WAL mode with
// several connections, so concurrent callers really overlap. Writers wait on
// each other through the busy timeout.
func newConcurrentTestDB(t *testing.T, conns int) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s/pasar.db?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate", t.TempDir())
	db, err := repositories.Open("sqlite", dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, repositories.Migrate(db))
	return db
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	return newTestEnvOn(t, newTestDB(t), opts...)
}

func newTestEnvOn(t *testing.T, db *gorm.DB, opts ...envOption) *testEnv {
	t.Helper()

	e := &testEnv{
		db:         db,
		products:   repositories.NewGORMProductRepository(db),
		sellers:    repositories.NewGORMSellerRepository(db),
		invRepo:    repositories.NewGORMInventoryRepository(db),
		orderRepo:  repositories.NewGORMOrderRepository(db),
		walletRepo: repositories.NewGORMWalletRepository(db),
		settleRepo: repositories.NewGORMSettlementRepository(db),
		recorder:   &events.Recorder{},
	}
	bus := events.NewBus(nil)
	bus.Subscribe("*", e.recorder.Observe)

	e.inventory = services.NewInventoryService(e.invRepo, e.products, bus)
	e.carts = services.NewCartService(repositories.NewGORMCartRepository(db), e.products, e.inventory, nil, time.Hour)
	e.wallets = services.NewWalletService(e.walletRepo)
	e.settlements = services.NewSettlementService(e.settleRepo, e.orderRepo,
		services.NewRateCommission(decimal.RequireFromString("0.10")), e.wallets, platformWallet, bus)

	deps := services.OrderDeps{
		Orders:     e.orderRepo,
		Sellers:    e.sellers,
		Products:   e.products,
		Carts:      e.carts,
		Inventory:  e.inventory,
		Wallets:    e.wallets,
		Sequencer:  repositories.NewGORMSequenceRepository(db),
		Settlement: e.settlements,
		Events:     bus,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	e.orders = services.NewOrderService(deps)
	return e
}

func (e *testEnv) seller(t *testing.T, flatFee int64) *models.Seller {
	t.Helper()
	s := &models.Seller{Name: "Toko " + uuid.NewString()[:6], IsActive: true, FlatDeliveryFee: flatFee}
	require.NoError(t, e.sellers.Create(context.Background(), s))
	return s
}

// product creates an active product of sellerID with stock on-hand units.
func (e *testEnv) product(t *testing.T, sellerID string, price int64, stock int) *models.Product {
	t.Helper()
	ctx := context.Background()
	p := &models.Product{SellerID: sellerID, Name: "Item " + uuid.NewString()[:6], SKU: "SKU-" + uuid.NewString()[:8], Price: price}
	require.NoError(t, e.products.Create(ctx, p))
	_, err := e.inventory.CreateRecord(ctx, services.CreateRecordInput{
		ProductID:       p.ID,
		SellerID:        sellerID,
		InitialQuantity: stock,
		Actor:           "test",
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) record(t *testing.T, productID string) *models.InventoryRecord {
	t.Helper()
	rec, err := e.inventory.GetRecord(context.Background(), productID, "")
	require.NoError(t, err)
	return rec
}

func (e *testEnv) fund(t *testing.T, ownerID string, amount int64) {
	t.Helper()
	require.NoError(t, e.wallets.Credit(context.Background(), ownerID, amount, "topup:"+uuid.NewString()))
}

func (e *testEnv) addToCart(t *testing.T, customerID, productID string, qty int) {
	t.Helper()
	_, err := e.carts.AddItem(context.Background(), services.CartOwner{CustomerID: customerID}, services.AddItemInput{
		ProductID: productID,
		Quantity:  qty,
	})
	require.NoError(t, err)
}

func testAddress() models.Address {
	return models.Address{
		Recipient: "Budi",
		Phone:     "08123456789",
		Line1:     "Jl. Merdeka 1",
		City:      "Bandung",
	}
}

func cashOrder(sellerID string) services.CreateOrderInput {
	return services.CreateOrderInput{
		SellerID:        sellerID,
		PaymentMethod:   models.PaymentCash,
		DeliveryAddress: testAddress(),
	}
}

// assertLedgerFolds checks that replaying the movement log reproduces the record.
func assertLedgerFolds(t *testing.T, e *testEnv, inventoryID string) {
	t.Helper()
	ctx := context.Background()
	rec, err := e.invRepo.GetByID(ctx, inventoryID)
	require.NoError(t, err)
	movements, err := e.inventory.Movements(ctx, inventoryID)
	require.NoError(t, err)

	var qty, reserved int
	for _, m := range movements {
		qty += m.QuantityDelta
		reserved += m.ReservedDelta
	}
	require.Equal(t, rec.Quantity, qty, "on-hand quantity")
	require.Equal(t, rec.ReservedQuantity, reserved, "reserved quantity")
	require.Equal(t, rec.Quantity-rec.ReservedQuantity, rec.AvailableQuantity, "available quantity")
	require.GreaterOrEqual(t, rec.AvailableQuantity, 0)
	require.GreaterOrEqual(t, rec.ReservedQuantity, 0)
}
