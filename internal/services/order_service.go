package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pasar/internal/apperror"
	"pasar/internal/logger"
	"pasar/internal/models"
	"pasar/internal/repositories"
	"pasar/internal/validation"
	"pasar/pkg/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// orderNumberAttempts bounds retries of an insert that collided on the order number.
const orderNumberAttempts = 5

// CreateOrderInput is the checkout request for one seller's lines of a cart.
type CreateOrderInput struct {
	SellerID        string               `json:"sellerId" validate:"required,uuid"`
	PaymentMethod   models.PaymentMethod `json:"paymentMethod" validate:"required,oneof=cash wallet mixed online"`
	DeliveryAddress models.Address       `json:"deliveryAddress" validate:"required"`
	CouponCode      string               `json:"couponCode,omitempty"`
	CustomerNotes   string               `json:"customerNotes,omitempty" validate:"max=500"`
	PointsToUse     int64                `json:"pointsToUse" validate:"gte=0"`
	WalletAmount    int64                `json:"walletAmount" validate:"gte=0"`
}

// OrderPage is one page of an order listing.
type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// OrderDeps wires an OrderService. Shipping defaults to SellerShipping;
// Discounts, Tax and Settlement are optional.
type OrderDeps struct {
	Orders     repositories.OrderRepository
	Sellers    repositories.SellerRepository
	Products   repositories.ProductRepository
	Carts      *CartService
	Inventory  *InventoryService
	Wallets    WalletLedger
	Sequencer  Sequencer
	Shipping   ShippingCalculator
	Discounts  Discounter
	Tax        TaxCalculator
	Settlement Settler
	Events     events.Publisher
	Location   *time.Location
}

// OrderService turns carts into orders and drives them through their lifecycle.
type OrderService struct {
	orders     repositories.OrderRepository
	sellers    repositories.SellerRepository
	products   repositories.ProductRepository
	carts      *CartService
	inventory  *InventoryService
	wallets    WalletLedger
	sequencer  Sequencer
	shipping   ShippingCalculator
	discounts  Discounter
	tax        TaxCalculator
	settlement Settler
	events     events.Publisher
	loc        *time.Location
	now        func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(d OrderDeps) *OrderService {
	s := &OrderService{
		orders:     d.Orders,
		sellers:    d.Sellers,
		products:   d.Products,
		carts:      d.Carts,
		inventory:  d.Inventory,
		wallets:    d.Wallets,
		sequencer:  d.Sequencer,
		shipping:   d.Shipping,
		discounts:  d.Discounts,
		tax:        d.Tax,
		settlement: d.Settlement,
		events:     d.Events,
		loc:        d.Location,
		now:        time.Now,
	}
	if s.shipping == nil {
		s.shipping = SellerShipping{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	return s
}

// heldItem is a reservation taken during checkout, undone if checkout fails.
type heldItem struct {
	inventoryID string
}

// CreateOrder converts the customer's cart lines for one seller into an order.
// Stock is reserved line by line; any failure after the first reservation
// releases what was reserved and refunds any wallet debit.
func (s *OrderService) CreateOrder(ctx context.Context, customerID string, in CreateOrderInput) (*models.Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "OrderService.CreateOrder"),
		zap.String("customer_id", customerID),
		zap.String("seller_id", in.SellerID),
	)

	if customerID == "" {
		return nil, apperror.Validation("customer id is required")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.PaymentMethod == models.PaymentMixed && in.WalletAmount <= 0 {
		return nil, apperror.Validation("wallet amount must be positive for mixed payment").
			WithDetail(map[string]string{"walletAmount": "gt=0"})
	}

	cart, err := s.carts.GetCart(ctx, CartOwner{CustomerID: customerID})
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, apperror.InvalidState("cart is empty")
	}
	lines := cart.ItemsForSeller(in.SellerID)
	if len(lines) == 0 {
		return nil, apperror.InvalidState("cart has no items from seller %s", in.SellerID)
	}

	seller, err := s.sellers.GetByID(ctx, in.SellerID)
	if err != nil {
		return nil, notFoundOr(err, "seller %s not found", in.SellerID)
	}
	if !seller.IsActive {
		return nil, apperror.InvalidState("seller %s is not accepting orders", seller.Name)
	}

	var maxPoints int64
	for _, l := range lines {
		maxPoints += l.PointsPrice * int64(l.Quantity)
	}
	if in.PointsToUse > maxPoints {
		return nil, apperror.Validation("cannot use %d points, at most %d apply to this order", in.PointsToUse, maxPoints).
			WithDetail(map[string]string{"pointsToUse": fmt.Sprintf("lte=%d", maxPoints)})
	}

	now := s.now()
	order := &models.Order{
		ID:              uuid.New().String(),
		CustomerID:      customerID,
		SellerID:        seller.ID,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		Status:          models.OrderPending,
		DeliveryAddress: in.DeliveryAddress,
		CustomerNotes:   in.CustomerNotes,
		PointsUsed:      in.PointsToUse,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.CouponCode != "" {
		code := in.CouponCode
		order.CouponCode = &code
	}
	log = log.With(zap.String("order_id", order.ID))

	var held []heldItem
	var walletDebited int64
	fail := func(err error) (*models.Order, error) {
		s.compensate(ctx, log, order.ID, customerID, held, walletDebited)
		return nil, err
	}

	for _, line := range lines {
		item, err := s.reserveLine(ctx, order.ID, customerID, line)
		if err != nil {
			log.Info("checkout line rejected", zap.String("product_id", line.ProductID), zap.Error(err))
			return fail(err)
		}
		held = append(held, heldItem{inventoryID: item.InventoryID})
		order.Items = append(order.Items, *item)
		order.Subtotal += item.Subtotal
	}

	if err := s.price(ctx, order, seller); err != nil {
		return fail(err)
	}

	debit, err := s.collectPayment(ctx, order, in.WalletAmount)
	walletDebited = debit
	if err != nil {
		return fail(err)
	}

	order.StatusHistory = []models.StatusHistoryEntry{{
		Status:    models.OrderPending,
		Actor:     customerID,
		Notes:     "Order created",
		CreatedAt: now,
	}}
	if err := s.persist(ctx, order); err != nil {
		log.Error("failed to persist order", zap.Error(err))
		return fail(err)
	}

	if _, err := s.carts.RemoveOrderedLines(ctx, CartOwner{CustomerID: customerID}, lines); err != nil {
		log.Warn("failed to remove ordered lines from cart", zap.Error(err))
	}

	log.Info("order created",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total", order.Total),
		zap.String("payment_status", string(order.PaymentStatus)))

	s.publish(ctx, events.OrderCreated, order, map[string]any{
		"orderId":     order.ID,
		"customerId":  order.CustomerID,
		"sellerId":    order.SellerID,
		"orderNumber": order.OrderNumber,
		"total":       order.Total,
	})
	return order, nil
}

// reserveLine reserves one cart line against its inventory record and
// snapshots it into an order item.
func (s *OrderService) reserveLine(ctx context.Context, orderID, actor string, line models.CartItem) (*models.OrderItem, error) {
	product, err := s.products.GetByID(ctx, line.ProductID)
	if err != nil {
		return nil, notFoundOr(err, "product %s not found", line.ProductID)
	}
	if product.Status == models.ProductInactive {
		return nil, apperror.InvalidState("product %s is not available for purchase", product.Name)
	}
	var variant *models.Variant
	if line.VariantID != "" {
		if variant, err = s.products.GetVariant(ctx, line.ProductID, line.VariantID); err != nil {
			return nil, notFoundOr(err, "variant %s of product %s not found", line.VariantID, line.ProductID)
		}
	}
	name := product.NameFor(variant)

	shortage := func(available int) error {
		return apperror.Insufficient("insufficient stock for %s", name).
			WithDetail(apperror.StockShortage{
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Name:      name,
				Requested: line.Quantity,
				Available: available,
			})
	}

	rec, err := s.inventory.GetRecord(ctx, line.ProductID, line.VariantID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, shortage(0)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.inventory.ReserveForOrder(ctx, orderID, rec, line.Quantity, actor); err != nil {
		if errors.Is(err, apperror.ErrInsufficientResource) {
			available := rec.AvailableQuantity
			if d, ok := apperror.DetailOf(err).(apperror.StockShortage); ok {
				available = d.Available
			}
			return nil, shortage(available)
		}
		return nil, err
	}

	return &models.OrderItem{
		ProductID:   line.ProductID,
		VariantID:   line.VariantID,
		InventoryID: rec.ID,
		Name:        name,
		Image:       product.ImageFor(variant),
		SKU:         product.SKUFor(variant),
		Quantity:    line.Quantity,
		UnitPrice:   line.Price,
		PointsPrice: line.PointsPrice,
		Subtotal:    line.LineTotal(),
	}, nil
}

// price fills delivery fee, discount, tax and total from the subtotal.
func (s *OrderService) price(ctx context.Context, order *models.Order, seller *models.Seller) error {
	fee, err := s.shipping.DeliveryFee(ctx, seller, order.DeliveryAddress, order.Subtotal)
	if err != nil {
		return fmt.Errorf("failed to compute delivery fee: %w", err)
	}
	order.DeliveryFee = fee

	if order.CouponCode != nil && s.discounts != nil {
		discount, err := s.discounts.OrderDiscount(ctx, order, *order.CouponCode)
		if err != nil {
			return err
		}
		order.Discount = max(0, min(discount, order.Subtotal+order.DeliveryFee))
	}
	if s.tax != nil {
		tax, err := s.tax.OrderTax(ctx, order)
		if err != nil {
			return fmt.Errorf("failed to compute tax: %w", err)
		}
		order.Tax = max(0, tax)
	}
	order.Total = max(0, order.Subtotal+order.DeliveryFee+order.Tax-order.Discount)
	return nil
}

// collectPayment debits the wallet share and sets the payment status. The order
// is paid only when the wallet covers the whole total. It returns the amount
// debited.
func (s *OrderService) collectPayment(ctx context.Context, order *models.Order, walletAmount int64) (int64, error) {
	var debit int64
	switch order.PaymentMethod {
	case models.PaymentWallet:
		debit = order.Total
	case models.PaymentMixed:
		debit = min(walletAmount, order.Total)
	default:
		return 0, nil
	}

	if debit > 0 {
		if err := s.wallets.Debit(ctx, order.CustomerID, debit, "order:"+order.ID); err != nil {
			return 0, err
		}
	}
	order.WalletAmountPaid = debit
	if debit == order.Total {
		order.PaymentStatus = models.PaymentPaid
	}
	return debit, nil
}

// persist numbers and inserts the order, taking the next number on a collision.
func (s *OrderService) persist(ctx context.Context, order *models.Order) error {
	local := s.now().In(s.loc)
	day := local.Format("060102")
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		seq, err := s.sequencer.Next(ctx, day)
		if err != nil {
			return fmt.Errorf("failed to allocate order number: %w", err)
		}
		order.OrderNumber = FormatOrderNumber(local, seq)
		err = s.orders.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrDuplicateKey) {
			return err
		}
	}
	return apperror.Conflict("could not allocate a unique order number")
}

// FormatOrderNumber renders ORD-{yy}{mm}{dd}-{seq:04}.
func FormatOrderNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%02d%02d%02d-%04d", day.Year()%100, int(day.Month()), day.Day(), seq)
}

// compensate undoes a failed checkout. It runs detached from the request's
// cancellation so an aborted request still cleans up; whatever it misses is
// picked up by the reconciliation sweep.
func (s *OrderService) compensate(ctx context.Context, log *zap.Logger, orderID, customerID string, held []heldItem, walletDebited int64) {
	ctx = context.WithoutCancel(ctx)
	for _, h := range held {
		if _, err := s.inventory.ReleaseForOrder(ctx, orderID, h.inventoryID, models.MovementRelease, "order creation failed", customerID); err != nil {
			log.Error("failed to release checkout reservation", zap.String("inventory_id", h.inventoryID), zap.Error(err))
		}
	}
	if walletDebited > 0 {
		if err := s.wallets.Credit(ctx, customerID, walletDebited, "rollback:"+orderID); err != nil {
			log.Error("failed to refund checkout wallet debit", zap.Int64("amount", walletDebited), zap.Error(err))
		}
	}
}

// GetOrder loads an order with its items and history.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "order %s not found", id)
	}
	return order, nil
}

// ListForCustomer pages through a customer's orders, newest first.
func (s *OrderService) ListForCustomer(ctx context.Context, customerID string, filter models.OrderFilter) (*OrderPage, error) {
	return s.list(ctx, repositories.OrderScope{CustomerID: customerID}, filter)
}

// ListForSeller pages through a seller's orders, newest first.
func (s *OrderService) ListForSeller(ctx context.Context, sellerID string, filter models.OrderFilter) (*OrderPage, error) {
	return s.list(ctx, repositories.OrderScope{SellerID: sellerID}, filter)
}

func (s *OrderService) list(ctx context.Context, scope repositories.OrderScope, filter models.OrderFilter) (*OrderPage, error) {
	if filter.Status != "" && !knownStatus(filter.Status) {
		return nil, apperror.Validation("unknown order status %q", filter.Status)
	}
	filter = repositories.NormalizeFilter(filter)
	orders, total, err := s.orders.List(ctx, scope, filter)
	if err != nil {
		return nil, err
	}
	return &OrderPage{Orders: orders, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// ConfirmPayment marks an online order as paid once the gateway settled it.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID, reference, actor string) (*models.Order, error) {
	if reference == "" {
		return nil, apperror.Validation("payment reference is required")
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != models.PaymentOnline {
		return nil, apperror.InvalidState("order %s is not paid online", order.OrderNumber)
	}
	if order.Status == models.OrderCancelled {
		return nil, apperror.InvalidState("order %s is cancelled", order.OrderNumber)
	}
	if order.PaymentStatus != models.PaymentPending {
		return nil, apperror.InvalidState("order %s payment is already %s", order.OrderNumber, order.PaymentStatus)
	}

	expected := order.Version
	order.PaymentStatus = models.PaymentPaid
	order.PaymentReference = reference
	order.UpdatedAt = s.now()
	entry := models.StatusHistoryEntry{
		Status:    order.Status,
		Actor:     actor,
		Notes:     "Payment confirmed: " + reference,
		CreatedAt: order.UpdatedAt,
	}
	if err := s.transition(ctx, order, expected, entry); err != nil {
		return nil, err
	}
	logger.FromCtx(ctx).Info("order payment confirmed", zap.String("order_id", order.ID), zap.String("reference", reference))
	return order, nil
}

func (s *OrderService) transition(ctx context.Context, order *models.Order, expected int, entry models.StatusHistoryEntry) error {
	err := s.orders.Transition(ctx, order, expected, entry)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrStaleVersion):
		return apperror.Conflict("order %s was modified concurrently, reload and retry", order.ID).Wrap(err)
	case errors.Is(err, repositories.ErrNotFound):
		return apperror.NotFound("order %s not found", order.ID).Wrap(err)
	}
	return err
}

func (s *OrderService) publish(ctx context.Context, name string, order *models.Order, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, name, order.ID, payload)
}
