package handlers

import (
	"pasar/internal/apperror"
	"pasar/internal/middleware"
	"pasar/internal/services"
	"pasar/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// HeaderSessionID identifies a guest cart.
const HeaderSessionID = "X-Session-ID"

// CartHandler handles HTTP requests for carts.
type CartHandler struct {
	service *services.CartService
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(service *services.CartService) *CartHandler {
	return &CartHandler{service: service}
}

// RegisterRoutes registers the cart routes. optional authenticates when a
// token is present; required rejects anonymous callers.
func (h *CartHandler) RegisterRoutes(router fiber.Router, optional, required fiber.Handler) {
	cartRoutes := router.Group("/cart")
	cartRoutes.Get("/", optional, h.HandleGetCart)
	cartRoutes.Delete("/", optional, h.HandleClearCart)
	cartRoutes.Post("/items", optional, h.HandleAddItem)
	cartRoutes.Patch("/items", optional, h.HandleUpdateItem)
	cartRoutes.Delete("/items", optional, h.HandleRemoveItem)
	cartRoutes.Post("/coupon", optional, h.HandleApplyCoupon)
	cartRoutes.Delete("/coupon", optional, h.HandleRemoveCoupon)
	cartRoutes.Post("/merge", required, h.HandleMerge)
}

// owner resolves the cart owner: the authenticated user, else the guest session.
func owner(c *fiber.Ctx) services.CartOwner {
	if id := middleware.UserID(c); id != "" {
		return services.CartOwner{CustomerID: id}
	}
	return services.CartOwner{SessionID: c.Get(HeaderSessionID)}
}

func (h *CartHandler) HandleGetCart(c *fiber.Ctx) error {
	cart, err := h.service.GetCart(c.UserContext(), owner(c))
	if err != nil {
		return respondError(c, "Could not retrieve cart", err)
	}
	return c.JSON(cart)
}

func (h *CartHandler) HandleClearCart(c *fiber.Ctx) error {
	cart, err := h.service.Clear(c.UserContext(), owner(c))
	if err != nil {
		return respondError(c, "Could not clear cart", err)
	}
	return c.JSON(cart)
}

func (h *CartHandler) HandleAddItem(c *fiber.Ctx) error {
	var req services.AddItemInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	cart, err := h.service.AddItem(c.UserContext(), owner(c), req)
	if err != nil {
		return respondError(c, "Could not add item to cart", err)
	}
	return c.Status(fiber.StatusCreated).JSON(cart)
}

// UpdateItemRequest sets the quantity of a cart line; 0 removes it.
type UpdateItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

func (h *CartHandler) HandleUpdateItem(c *fiber.Ctx) error {
	var req UpdateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := validation.Struct(req); err != nil {
		return respondError(c, "Validation failed", err)
	}
	cart, err := h.service.UpdateItemQuantity(c.UserContext(), owner(c), req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		return respondError(c, "Could not update cart item", err)
	}
	return c.JSON(cart)
}

func (h *CartHandler) HandleRemoveItem(c *fiber.Ctx) error {
	productID := c.Query("productId")
	if err := validation.Var("productId", productID, "required"); err != nil {
		return respondError(c, "Validation failed", err)
	}
	cart, err := h.service.RemoveItem(c.UserContext(), owner(c), productID, c.Query("variantId"))
	if err != nil {
		return respondError(c, "Could not remove cart item", err)
	}
	return c.JSON(cart)
}

func (h *CartHandler) HandleApplyCoupon(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := validation.Var("code", req.Code, "required"); err != nil {
		return respondError(c, "Validation failed", err)
	}
	cart, err := h.service.ApplyCoupon(c.UserContext(), owner(c), req.Code)
	if err != nil {
		return respondError(c, "Could not apply coupon", err)
	}
	return c.JSON(cart)
}

func (h *CartHandler) HandleRemoveCoupon(c *fiber.Ctx) error {
	cart, err := h.service.RemoveCoupon(c.UserContext(), owner(c))
	if err != nil {
		return respondError(c, "Could not remove coupon", err)
	}
	return c.JSON(cart)
}

// HandleMerge moves the guest cart named by X-Session-ID into the caller's cart.
func (h *CartHandler) HandleMerge(c *fiber.Ctx) error {
	sessionID := c.Get(HeaderSessionID)
	if sessionID == "" {
		return respondError(c, "Could not merge cart",
			apperror.Validation("%s header is required", HeaderSessionID))
	}
	res, err := h.service.MergeGuestCart(c.UserContext(), sessionID, middleware.UserID(c))
	if err != nil {
		return respondError(c, "Could not merge cart", err)
	}
	return c.JSON(res)
}
