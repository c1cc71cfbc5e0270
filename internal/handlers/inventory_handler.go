package handlers

import (
	"pasar/internal/middleware"
	"pasar/internal/services"
	"pasar/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// InventoryHandler handles HTTP requests for stock.
type InventoryHandler struct {
	service *services.InventoryService
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(service *services.InventoryService) *InventoryHandler {
	return &InventoryHandler{service: service}
}

// RegisterRoutes registers the inventory routes behind auth.
func (h *InventoryHandler) RegisterRoutes(router fiber.Router, auth fiber.Handler) {
	inv := router.Group("/inventory", auth)
	inv.Get("/availability", h.HandleAvailability)
	inv.Post("/reserve", h.HandleReserve)
	inv.Post("/release", h.HandleRelease)
	inv.Post("/stock/add", h.HandleAddStock)
	inv.Post("/stock/remove", h.HandleRemoveStock)
	inv.Get("/:id/movements", h.HandleMovements)
}

// ReservationRequest names a quantity of one product or variant.
type ReservationRequest struct {
	ProductID string `json:"productId" validate:"required"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

func (h *InventoryHandler) HandleAvailability(c *fiber.Ctx) error {
	req := ReservationRequest{
		ProductID: c.Query("productId"),
		VariantID: c.Query("variantId"),
		Quantity:  c.QueryInt("quantity", 1),
	}
	if err := validation.Struct(req); err != nil {
		return respondError(c, "Validation failed", err)
	}
	avail, err := h.service.CheckAvailability(c.UserContext(), req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		return respondError(c, "Could not check availability", err)
	}
	return c.JSON(avail)
}

func (h *InventoryHandler) parseReservation(c *fiber.Ctx) (*ReservationRequest, error) {
	var req ReservationRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, badRequest(c, err)
	}
	if err := validation.Struct(req); err != nil {
		return nil, respondError(c, "Validation failed", err)
	}
	return &req, nil
}

func (h *InventoryHandler) HandleReserve(c *fiber.Ctx) error {
	req, err := h.parseReservation(c)
	if req == nil {
		return err
	}
	rec, err := h.service.Reserve(c.UserContext(), req.ProductID, req.VariantID, req.Quantity, middleware.UserID(c))
	if err != nil {
		return respondError(c, "Could not reserve stock", err)
	}
	return c.JSON(rec)
}

func (h *InventoryHandler) HandleRelease(c *fiber.Ctx) error {
	req, err := h.parseReservation(c)
	if req == nil {
		return err
	}
	rec, err := h.service.Release(c.UserContext(), req.ProductID, req.VariantID, req.Quantity, middleware.UserID(c))
	if err != nil {
		return respondError(c, "Could not release stock", err)
	}
	return c.JSON(rec)
}

func (h *InventoryHandler) HandleAddStock(c *fiber.Ctx) error {
	var req services.StockInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	req.Actor = middleware.UserID(c)
	rec, err := h.service.AddStock(c.UserContext(), req)
	if err != nil {
		return respondError(c, "Could not add stock", err)
	}
	return c.JSON(rec)
}

func (h *InventoryHandler) HandleRemoveStock(c *fiber.Ctx) error {
	var req services.StockInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	req.Actor = middleware.UserID(c)
	rec, err := h.service.RemoveStock(c.UserContext(), req)
	if err != nil {
		return respondError(c, "Could not remove stock", err)
	}
	return c.JSON(rec)
}

func (h *InventoryHandler) HandleMovements(c *fiber.Ctx) error {
	movements, err := h.service.Movements(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, "Could not retrieve movements", err)
	}
	return c.JSON(fiber.Map{"movements": movements})
}
