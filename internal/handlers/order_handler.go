package handlers

import (
	"time"

	"pasar/internal/apperror"
	"pasar/internal/middleware"
	"pasar/internal/models"
	"pasar/internal/services"

	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service: service,
	}
}

// RegisterRoutes registers the order routes behind auth.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, auth fiber.Handler) {
	orderRoutes := router.Group("/orders", auth)
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Patch("/:id/status", h.HandleUpdateOrderStatus)
	orderRoutes.Post("/:id/cancel", h.HandleCancelOrder)
	orderRoutes.Post("/:id/payment", h.HandleConfirmPayment)

	router.Get("/sellers/:sellerId/orders", auth, h.HandleGetSellerOrders)
}

// parseFilter reads status, paymentStatus, from, to (RFC 3339), page and limit.
func parseFilter(c *fiber.Ctx) (models.OrderFilter, error) {
	filter := models.OrderFilter{
		Status:        models.OrderStatus(c.Query("status")),
		PaymentStatus: models.PaymentStatus(c.Query("paymentStatus")),
		Page:          c.QueryInt("page", 1),
		Limit:         c.QueryInt("limit", 20),
	}
	for key, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperror.Validation("%s must be an RFC 3339 timestamp", key).
				WithDetail(map[string]string{key: "datetime"})
		}
		*dst = &t
	}
	return filter, nil
}

// HandleGetOrders lists the caller's orders, newest first.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return respondError(c, "Could not retrieve orders", err)
	}
	page, err := h.service.ListForCustomer(c.UserContext(), middleware.UserID(c), filter)
	if err != nil {
		return respondError(c, "Could not retrieve orders", err)
	}
	return c.JSON(page)
}

// HandleGetSellerOrders lists the orders placed with a seller.
func (h *OrderHandler) HandleGetSellerOrders(c *fiber.Ctx) error {
	filter, err := parseFilter(c)
	if err != nil {
		return respondError(c, "Could not retrieve orders", err)
	}
	page, err := h.service.ListForSeller(c.UserContext(), c.Params("sellerId"), filter)
	if err != nil {
		return respondError(c, "Could not retrieve orders", err)
	}
	return c.JSON(page)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, "Could not retrieve order", err)
	}
	return c.JSON(order)
}

// HandleCreateOrder checks out the caller's cart lines of one seller.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req services.CreateOrderInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	order, err := h.service.CreateOrder(c.UserContext(), middleware.UserID(c), req)
	if err != nil {
		return respondError(c, "Could not create order", err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleUpdateOrderStatus moves an order to its next status.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req services.StatusUpdateInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if req.Status == "" {
		return respondError(c, "Could not update order status",
			apperror.Validation("status is required").WithDetail(map[string]string{"status": "required"}))
	}
	req.Actor = middleware.UserID(c)

	order, err := h.service.UpdateStatus(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return respondError(c, "Could not update order status", err)
	}
	return c.JSON(order)
}

// HandleCancelOrder cancels an order that has not been picked up.
func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	order, err := h.service.CancelOrder(c.UserContext(), c.Params("id"), req.Reason, middleware.UserID(c))
	if err != nil {
		return respondError(c, "Could not cancel order", err)
	}
	return c.JSON(order)
}

// HandleConfirmPayment records the gateway payment of an online order.
func (h *OrderHandler) HandleConfirmPayment(c *fiber.Ctx) error {
	var req struct {
		Reference string `json:"reference"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	order, err := h.service.ConfirmPayment(c.UserContext(), c.Params("id"), req.Reference, middleware.UserID(c))
	if err != nil {
		return respondError(c, "Could not confirm payment", err)
	}
	return c.JSON(order)
}
